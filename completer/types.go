package completer

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

// PromptRow is one data row extracted from the tabular input.
type PromptRow struct {
	Index  int           // 0-based position in the input, stable ordering key
	Prompt string        // The prompt text to complete
	Extras []ExtraColumn // Passthrough columns in original order
}

// ExtraColumn is a passthrough column value carried through to the output.
type ExtraColumn struct {
	Name  string // Column name from the input header
	Value string // Cell value for this row
}

// CompletionOutcome is the terminal result of one row's completion attempt.
// Exactly one outcome is produced per row; a failed external call degrades
// that row's outcome, never the batch.
type CompletionOutcome struct {
	Text   string    // Generated completion, empty on failure
	Kind   ErrorKind // ErrorKindNone on success
	Detail string    // Human-readable failure detail, empty on success
}

// Failed reports whether the outcome represents a row-level failure.
func (o CompletionOutcome) Failed() bool {
	return o.Kind != ErrorKindNone
}

// ResultRow pairs a prompt row with its completion outcome.
type ResultRow struct {
	Row     PromptRow         // Original row
	Outcome CompletionOutcome // Completion or row-level failure
}

// ErrorKind names the failure class recorded in the output error column.
type ErrorKind string

const (
	ErrorKindNone           ErrorKind = ""
	ErrorKindTimeout        ErrorKind = "Timeout"
	ErrorKindRateLimited    ErrorKind = "RateLimited"
	ErrorKindAuthFailure    ErrorKind = "AuthFailure"
	ErrorKindInvalidRequest ErrorKind = "InvalidRequest"
	ErrorKindServiceError   ErrorKind = "ServiceError"
	ErrorKindUnknown        ErrorKind = "Unknown"
)

// Completer processes batches of prompts against the completion API.
type Completer interface {
	// ProcessBatch parses CSV input bytes, completes every row, and returns
	// the output CSV bytes. Batch-fatal conditions return an error and no
	// output; row-level failures are recorded in the output's error column.
	ProcessBatch(ctx context.Context, input []byte, opts ...BatchOption) ([]byte, error)

	// CompleteRows completes already-extracted rows and returns one result
	// per row, sorted by row index.
	CompleteRows(ctx context.Context, rows []PromptRow, opts ...BatchOption) ([]ResultRow, error)

	// GetHealth returns the current health status of the completer.
	GetHealth(ctx context.Context) HealthStatus
}

// HealthStatus represents the health state of the completer.
type HealthStatus struct {
	Healthy bool                   // Overall health status
	Status  string                 // Human-readable status message
	Details map[string]interface{} // Additional health details
}

// Config holds the configuration for the completer.
type Config struct {
	APIKey               string                // OpenAI API key (required)
	Model                string                // OpenAI model to use
	MaxTokens            int                   // Cap on generated completion length
	Temperature          float32               // Sampling temperature (0 = provider default)
	PromptColumn         string                // Input column holding prompts (default "prompt")
	PromptTemplate       string                // Optional sprintf template wrapping each prompt
	SystemPrompt         string                // Optional system message sent before each prompt
	MaxConcurrent        int                   // Maximum concurrent API calls
	RequestsPerSecond    float64               // Outbound call rate cap (0 = unthrottled)
	MaxPromptLength      int                   // Maximum prompt length per row (0 = use default)
	EnableCircuitBreaker bool                  // Enable circuit breaker pattern
	EnableRetry          bool                  // Enable retry with backoff
	Timeout              time.Duration         // Per-attempt request timeout
	CircuitBreakerConfig *CircuitBreakerConfig // Circuit breaker configuration
	RetryConfig          *RetryConfig          // Retry configuration
}

// CircuitBreakerConfig holds circuit breaker settings
type CircuitBreakerConfig struct {
	MaxRequests   uint32                                      // Max requests in half-open state
	Interval      time.Duration                               // Interval for closed state
	Timeout       time.Duration                               // Timeout for open state
	ReadyToTrip   func(counts gobreaker.Counts) bool          // Custom trip condition
	OnStateChange func(name string, from, to gobreaker.State) // State change callback
}

// RetryConfig holds retry settings
type RetryConfig struct {
	MaxAttempts  int           // Maximum number of attempts including the first
	Strategy     RetryStrategy // Backoff strategy to use
	InitialDelay time.Duration // Initial delay between retries
	MaxDelay     time.Duration // Maximum delay between retries
}

// RetryStrategy defines the backoff strategy for retries
type RetryStrategy string

const (
	RetryStrategyExponential RetryStrategy = "exponential"
	RetryStrategyConstant    RetryStrategy = "constant"
	RetryStrategyFibonacci   RetryStrategy = "fibonacci"

	// Prompt length limits
	DefaultMaxPromptLength = 10000 // Default maximum prompt length in characters
	MinPromptLength        = 1     // Minimum prompt length to be valid
)

// OpenAIClient defines the interface for interacting with OpenAI API
type OpenAIClient interface {
	CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Internal completer implementation
type completer struct {
	client    *completionClient
	scheduler *batchScheduler
	breaker   *CircuitBreakerWrapper
	metrics   *MetricsRecorder
	config    Config
}

// Error definitions
var (
	ErrMissingAPIKey  = errors.New("OpenAI API key is required")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrMalformedInput = errors.New("malformed input")
	ErrEmptyInput     = errors.New("input contains no data rows")
	ErrSerialization  = errors.New("result serialization failed")
)

// BatchOption is a functional option for configuring a single batch run
type BatchOption func(*batchOptions)

// batchOptions holds the options for one batch (internal)
type batchOptions struct {
	model          string  // Model to use for this batch
	promptColumn   string  // Input column holding prompts
	promptTemplate string  // Prompt template for this batch
	maxTokens      int     // Completion length cap for this batch
	temperature    float32 // Sampling temperature for this batch
	hasTemperature bool    // Whether temperature was explicitly set
}

// WithModel sets the model for this batch
func WithModel(model string) BatchOption {
	return func(opts *batchOptions) {
		opts.model = model
	}
}

// WithPromptColumn sets the input column holding prompts for this batch
func WithPromptColumn(name string) BatchOption {
	return func(opts *batchOptions) {
		opts.promptColumn = name
	}
}

// WithPromptTemplate sets a custom prompt template for this batch
func WithPromptTemplate(template string) BatchOption {
	return func(opts *batchOptions) {
		opts.promptTemplate = template
	}
}

// WithMaxTokens caps the completion length for this batch
func WithMaxTokens(maxTokens int) BatchOption {
	return func(opts *batchOptions) {
		opts.maxTokens = maxTokens
	}
}

// WithTemperature sets the sampling temperature for this batch
func WithTemperature(temperature float32) BatchOption {
	return func(opts *batchOptions) {
		opts.temperature = temperature
		opts.hasTemperature = true
	}
}
