// Package completer provides a production-ready Go library for generating
// text completions for batches of prompts using OpenAI's chat API.
//
// The library accepts CSV input with a configurable prompt column, completes
// every row concurrently under a configurable parallelism cap, and emits CSV
// output in input row order with completion and error columns appended.
//
// Features:
//   - CSV in, CSV out batch processing with passthrough of extra columns
//   - Concurrent completion with configurable parallelism and rate limiting
//   - Per-row failure isolation (one bad row never fails the batch)
//   - Interface-first design for testing and extensibility
//   - Circuit breaker pattern for resilience
//   - Retry logic with exponential backoff
//   - Prometheus metrics integration
//   - Prompt validation and sanitization utilities
//
// Basic usage:
//
//	cfg := completer.NewDefaultConfig(os.Getenv("OPENAI_API_KEY"))
//	c, err := completer.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := c.ProcessBatch(ctx, csvBytes)
package completer
