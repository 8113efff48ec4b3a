package completer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

// timeoutClient applies the per-attempt deadline. It sits at the bottom of
// the client stack so each retry attempt gets a fresh deadline instead of
// inheriting one already burned by a previous attempt.
type timeoutClient struct {
	api     OpenAIClient
	timeout time.Duration
}

func newTimeoutClient(api OpenAIClient, timeout time.Duration) *timeoutClient {
	return &timeoutClient{api: api, timeout: timeout}
}

func (t *timeoutClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.api.CreateChatCompletion(ctx, req)
}

// completionClient turns one prompt row into exactly one outcome. Retries and
// circuit breaking happen inside the layered OpenAIClient it wraps, invisibly
// to callers: the scheduler only ever sees a finalized outcome per row.
type completionClient struct {
	api     OpenAIClient
	config  Config
	metrics *MetricsRecorder
}

func newCompletionClient(api OpenAIClient, cfg Config, metrics *MetricsRecorder) *completionClient {
	return &completionClient{
		api:     api,
		config:  cfg,
		metrics: metrics,
	}
}

// Complete issues one completion call for the row. It never returns an error:
// exhausted retries and non-retryable failures are classified into the
// outcome's ErrorKind, so one bad row degrades itself and nothing else.
func (c *completionClient) Complete(ctx context.Context, row PromptRow, opts *batchOptions) CompletionOutcome {
	if strings.TrimSpace(row.Prompt) == "" {
		return CompletionOutcome{
			Kind:   ErrorKindInvalidRequest,
			Detail: "prompt is empty",
		}
	}

	maxLen := c.config.MaxPromptLength
	if maxLen <= 0 {
		maxLen = DefaultMaxPromptLength
	}
	if len(row.Prompt) > maxLen {
		return CompletionOutcome{
			Kind:   ErrorKindInvalidRequest,
			Detail: fmt.Sprintf("prompt exceeds maximum length of %d characters", maxLen),
		}
	}

	req := c.buildRequest(row.Prompt, opts)

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		kind := ClassifyErrorKind(err)
		c.metrics.RecordAPICall("chat_completion", "error", elapsed.Seconds())
		c.metrics.RecordError(classifyError(err))
		slog.Warn("Completion failed",
			"row", row.Index,
			"kind", kind,
			"error", err)
		return CompletionOutcome{Kind: kind, Detail: err.Error()}
	}

	c.metrics.RecordAPICall("chat_completion", "success", elapsed.Seconds())
	recordUsage(c.metrics, resp.Usage)

	if len(resp.Choices) == 0 {
		slog.Warn("Completion response had no choices", "row", row.Index)
		return CompletionOutcome{
			Kind:   ErrorKindServiceError,
			Detail: "response contained no choices",
		}
	}

	text := resp.Choices[0].Message.Content
	c.metrics.RecordCompletionChars(len(text))
	slog.Debug("Row completed",
		"row", row.Index,
		"chars", len(text),
		"duration", elapsed)

	return CompletionOutcome{Text: text}
}

// buildRequest shapes the outbound chat request from the configuration plus
// any per-batch overrides.
func (c *completionClient) buildRequest(prompt string, opts *batchOptions) openai.ChatCompletionRequest {
	model := c.config.Model
	template := c.config.PromptTemplate
	maxTokens := c.config.MaxTokens
	temperature := c.config.Temperature

	if opts != nil {
		if opts.model != "" {
			model = opts.model
		}
		if opts.promptTemplate != "" {
			template = opts.promptTemplate
		}
		if opts.maxTokens > 0 {
			maxTokens = opts.maxTokens
		}
		if opts.hasTemperature {
			temperature = opts.temperature
		}
	}

	if template != "" {
		prompt = fmt.Sprintf(template, prompt)
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if c.config.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: c.config.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	return openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
}

func recordUsage(metrics *MetricsRecorder, usage openai.Usage) {
	if usage.TotalTokens == 0 {
		return
	}
	metrics.RecordTokensUsed("prompt", usage.PromptTokens)
	metrics.RecordTokensUsed("completion", usage.CompletionTokens)
	metrics.RecordTokensUsed("total", usage.TotalTokens)
}

// ClassifyErrorKind maps a completion error onto the failure taxonomy
// recorded in the output error column.
func ClassifyErrorKind(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return ErrorKindRateLimited
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return ErrorKindAuthFailure
		case apiErr.HTTPStatusCode >= 500:
			return ErrorKindServiceError
		case apiErr.HTTPStatusCode >= 400:
			return ErrorKindInvalidRequest
		}
		return ErrorKindUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorKindTimeout
	}

	// A rejecting breaker means the service is effectively unavailable
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrorKindServiceError
	}

	return ErrorKindUnknown
}
