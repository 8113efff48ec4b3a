package completer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// New creates a Completer that talks to the OpenAI API
func New(cfg Config) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	api := openai.NewClient(cfg.APIKey)
	return newCompleter(api, cfg.withDefaults()), nil
}

// NewWithClient creates a Completer backed by a caller-supplied client. The
// API key requirement is waived since the caller owns authentication.
func NewWithClient(client OpenAIClient, cfg Config) (Completer, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}

	if err := cfg.validateOptions(); err != nil {
		return nil, err
	}

	return newCompleter(client, cfg.withDefaults()), nil
}

// BuildProductionCompleter creates a production-ready completer with retry,
// circuit breaking and metrics enabled
func BuildProductionCompleter(apiKey string) (Completer, error) {
	return New(NewProductionConfig(apiKey))
}

// newCompleter assembles the layered client stack and the batch machinery
// around it.
func newCompleter(api OpenAIClient, cfg Config) *completer {
	metrics := NewMetricsRecorder(true)

	stacked := api

	// Layer 1: per-attempt timeout (innermost, so each retry gets a fresh deadline)
	if cfg.Timeout > 0 {
		stacked = newTimeoutClient(stacked, cfg.Timeout)
	}

	// Layer 2: retry logic
	if cfg.EnableRetry {
		slog.Info("Enabling retry logic",
			"max_attempts", cfg.RetryConfig.MaxAttempts,
			"strategy", cfg.RetryConfig.Strategy)
		rw := NewRetryWrapper(stacked, cfg.RetryConfig)
		rw.metrics = metrics
		stacked = rw
	}

	// Layer 3: circuit breaker (outermost, counts each exhausted retry sequence once)
	var breaker *CircuitBreakerWrapper
	if cfg.EnableCircuitBreaker {
		slog.Info("Enabling circuit breaker",
			"max_requests", cfg.CircuitBreakerConfig.MaxRequests,
			"timeout", cfg.CircuitBreakerConfig.Timeout)
		breaker = NewCircuitBreakerWrapper(stacked, cfg.CircuitBreakerConfig)
		breaker.metrics = metrics
		stacked = breaker
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.MaxConcurrent
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	client := newCompletionClient(stacked, cfg, metrics)

	c := &completer{
		client:    client,
		scheduler: newBatchScheduler(client, cfg.MaxConcurrent, limiter, metrics),
		breaker:   breaker,
		metrics:   metrics,
		config:    cfg,
	}

	slog.Info("Completer created",
		"model", cfg.Model,
		"max_concurrent", cfg.MaxConcurrent,
		"circuit_breaker", cfg.EnableCircuitBreaker,
		"retry", cfg.EnableRetry)

	return c
}

// ProcessBatch runs the full pipeline: parse CSV input, complete every row
// concurrently, and marshal the results back to CSV in input row order.
func (c *completer) ProcessBatch(ctx context.Context, input []byte, opts ...BatchOption) ([]byte, error) {
	start := time.Now()

	options := c.newBatchOptions(opts)

	rows, err := ExtractRows(input, options.promptColumn)
	if err != nil {
		c.metrics.RecordRequest("error", options.model)
		c.metrics.RecordError(classifyError(err))
		return nil, err
	}

	results, err := c.completeRows(ctx, rows, options)
	if err != nil {
		c.metrics.RecordRequest("error", options.model)
		c.metrics.RecordError(classifyError(err))
		return nil, err
	}

	out, err := MarshalResultsCSV(results, options.promptColumn)
	if err != nil {
		c.metrics.RecordRequest("error", options.model)
		c.metrics.RecordError(classifyError(err))
		return nil, err
	}

	c.metrics.RecordRequestDuration(time.Since(start).Seconds(), options.model)
	c.metrics.RecordRequest("success", options.model)

	failed := 0
	for _, r := range results {
		if r.Outcome.Failed() {
			failed++
		}
	}

	slog.Info("Batch processed",
		"rows", len(results),
		"failed", failed,
		"duration", time.Since(start))

	return out, nil
}

// CompleteRows completes rows the caller has already extracted. Results are
// re-sorted by each row's original index.
func (c *completer) CompleteRows(ctx context.Context, rows []PromptRow, opts ...BatchOption) ([]ResultRow, error) {
	options := c.newBatchOptions(opts)
	return c.completeRows(ctx, rows, options)
}

func (c *completer) completeRows(ctx context.Context, rows []PromptRow, options *batchOptions) ([]ResultRow, error) {
	outcomes, err := c.scheduler.Run(ctx, rows, options)
	if err != nil {
		return nil, err
	}

	return AssembleResults(rows, outcomes)
}

// newBatchOptions resolves per-batch options against the configuration
func (c *completer) newBatchOptions(opts []BatchOption) *batchOptions {
	options := &batchOptions{
		model:        c.config.Model,
		promptColumn: c.config.PromptColumn,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// GetHealth returns operational status, including circuit breaker state when
// one is configured
func (c *completer) GetHealth(ctx context.Context) HealthStatus {
	health := HealthStatus{
		Healthy: true,
		Status:  "operational",
		Details: map[string]interface{}{
			"model":                   c.config.Model,
			"max_concurrent":          c.config.MaxConcurrent,
			"prompt_column":           c.config.PromptColumn,
			"retry_enabled":           c.config.EnableRetry,
			"circuit_breaker_enabled": c.config.EnableCircuitBreaker,
			"metrics_enabled":         true,
		},
	}

	if c.breaker != nil {
		cb := c.breaker.GetHealth()
		health.Details["circuit_breaker"] = cb.Details

		if !cb.Healthy {
			health.Healthy = false
			health.Status = fmt.Sprintf("circuit %s", cb.Status)
		} else if cb.Status == "half-open" {
			health.Status = "degraded"
		}
	}

	return health
}

// stateToInt converts circuit breaker state to int for metrics
func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// classifyError returns error type for metrics
func classifyError(err error) string {
	if err == nil {
		return "none"
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return "rate_limit"
		case apiErr.HTTPStatusCode >= 500:
			return "server_error"
		case apiErr.HTTPStatusCode >= 400:
			return "client_error"
		default:
			return "api_error"
		}
	}

	if errors.Is(err, ErrMalformedInput) || errors.Is(err, ErrEmptyInput) {
		return "invalid_input"
	}

	if errors.Is(err, ErrSerialization) {
		return "serialization"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	if errors.Is(err, gobreaker.ErrOpenState) {
		return "circuit_open"
	}

	if errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "circuit_half_open"
	}

	return "unknown"
}
