package completer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

// NewDefaultConfig creates a config with sensible defaults. Retry is enabled
// by default because transient API failures are expected in batch workloads.
func NewDefaultConfig(apiKey string) Config {
	if apiKey == "" {
		panic("API key is required")
	}

	cfg := Config{
		APIKey:        apiKey,
		Model:         openai.GPT3Dot5Turbo,
		MaxTokens:     500,
		PromptColumn:  "prompt",
		MaxConcurrent: 5,
		Timeout:       30 * time.Second,
	}

	return cfg.WithRetry()
}

// NewProductionConfig creates a production-ready config with all resilience features
func NewProductionConfig(apiKey string) Config {
	cfg := NewDefaultConfig(apiKey)
	cfg.MaxConcurrent = 8
	cfg.Timeout = 60 * time.Second

	// Enable circuit breaker with production settings
	cfg = cfg.WithCircuitBreaker()

	return cfg
}

// withDefaults fills unset fields so a hand-built Config behaves like
// NewDefaultConfig for anything the caller left at its zero value.
func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = openai.GPT3Dot5Turbo
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 500
	}
	if c.PromptColumn == "" {
		c.PromptColumn = "prompt"
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 5
	}
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxPromptLength == 0 {
		c.MaxPromptLength = DefaultMaxPromptLength
	}
	return c
}

// WithCircuitBreaker enables circuit breaker with default settings
func (c Config) WithCircuitBreaker() Config {
	c.EnableCircuitBreaker = true
	c.CircuitBreakerConfig = &CircuitBreakerConfig{
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip if 5 consecutive failures OR failure rate > 60%
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && failureRatio > 0.6)
		},
	}
	return c
}

// WithCircuitBreakerConfig enables circuit breaker with custom settings
func (c Config) WithCircuitBreakerConfig(config *CircuitBreakerConfig) Config {
	c.EnableCircuitBreaker = true
	c.CircuitBreakerConfig = config
	return c
}

// WithRetry enables retry with default exponential backoff
func (c Config) WithRetry() Config {
	c.EnableRetry = true
	c.RetryConfig = &RetryConfig{
		MaxAttempts:  3,
		Strategy:     RetryStrategyExponential,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
	return c
}

// WithRetryStrategy enables retry with specified strategy
func (c Config) WithRetryStrategy(strategy RetryStrategy, maxAttempts int) Config {
	c.EnableRetry = true
	c.RetryConfig = &RetryConfig{
		MaxAttempts:  maxAttempts,
		Strategy:     strategy,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
	return c
}

// WithRetryConfig enables retry with custom settings
func (c Config) WithRetryConfig(config *RetryConfig) Config {
	c.EnableRetry = true
	c.RetryConfig = config
	return c
}

// WithModel sets the OpenAI model
func (c Config) WithModel(model string) Config {
	c.Model = model
	return c
}

// WithTimeout sets the per-attempt request timeout
func (c Config) WithTimeout(timeout time.Duration) Config {
	if timeout < 0 {
		panic("timeout must be positive")
	}
	c.Timeout = timeout
	return c
}

// WithMaxConcurrent sets the maximum concurrent requests
func (c Config) WithMaxConcurrent(max int) Config {
	if max < 0 {
		panic("MaxConcurrent must be non-negative")
	}
	c.MaxConcurrent = max
	return c
}

// WithMaxTokens caps the generated completion length
func (c Config) WithMaxTokens(maxTokens int) Config {
	if maxTokens < 0 {
		panic("MaxTokens must be non-negative")
	}
	c.MaxTokens = maxTokens
	return c
}

// WithTemperature sets the sampling temperature
func (c Config) WithTemperature(temperature float32) Config {
	if temperature < 0 || temperature > 2 {
		panic("temperature must be between 0 and 2")
	}
	c.Temperature = temperature
	return c
}

// WithPromptColumn sets the input column holding prompts
func (c Config) WithPromptColumn(name string) Config {
	if name == "" {
		panic("prompt column name cannot be empty")
	}
	c.PromptColumn = name
	return c
}

// WithPromptTemplate sets a template wrapping each prompt before submission.
// The template must contain a %s placeholder for the prompt text.
func (c Config) WithPromptTemplate(template string) Config {
	if !strings.Contains(template, "%s") {
		panic("prompt template must contain a %s placeholder")
	}
	c.PromptTemplate = template
	return c
}

// WithSystemPrompt sets a system message sent before each prompt
func (c Config) WithSystemPrompt(prompt string) Config {
	c.SystemPrompt = prompt
	return c
}

// WithRequestsPerSecond caps the outbound call rate across the whole batch
func (c Config) WithRequestsPerSecond(rps float64) Config {
	if rps < 0 {
		panic("RequestsPerSecond must be non-negative")
	}
	c.RequestsPerSecond = rps
	return c
}

// Validate checks if the config is valid
func (c Config) Validate() error {
	// Required fields
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}

	return c.validateOptions()
}

// validateOptions checks everything except the API key, which callers
// supplying their own client do not need
func (c Config) validateOptions() error {
	// Model validation
	if c.Model != "" && !isValidModel(c.Model) {
		return fmt.Errorf("unsupported model: %s", c.Model)
	}

	// Timeout validation
	if c.Timeout < 0 {
		return errors.New("timeout must be positive")
	}

	// Concurrency validation
	if c.MaxConcurrent < 0 {
		return errors.New("MaxConcurrent must be non-negative")
	}

	// Request shaping validation
	if c.MaxTokens < 0 {
		return errors.New("MaxTokens must be non-negative")
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return errors.New("temperature must be between 0 and 2")
	}

	if c.RequestsPerSecond < 0 {
		return errors.New("RequestsPerSecond must be non-negative")
	}

	if c.PromptTemplate != "" && !strings.Contains(c.PromptTemplate, "%s") {
		return errors.New("prompt template must contain a %s placeholder")
	}

	// Circuit breaker validation
	if c.EnableCircuitBreaker && c.CircuitBreakerConfig == nil {
		return errors.New("circuit breaker enabled but config is nil")
	}

	// Retry validation
	if c.EnableRetry {
		if c.RetryConfig == nil {
			return errors.New("retry enabled but config is nil")
		}

		if !isValidRetryStrategy(c.RetryConfig.Strategy) {
			return fmt.Errorf("invalid retry strategy: %s", c.RetryConfig.Strategy)
		}

		if c.RetryConfig.MaxAttempts <= 0 {
			return errors.New("retry MaxAttempts must be positive")
		}

		if c.RetryConfig.InitialDelay <= 0 {
			return errors.New("retry InitialDelay must be positive")
		}

		if c.RetryConfig.MaxDelay <= 0 {
			return errors.New("retry MaxDelay must be positive")
		}
	}

	return nil
}

// isValidModel checks if the model is supported
func isValidModel(model string) bool {
	validModels := []string{
		openai.GPT4,
		openai.GPT4o,
		openai.GPT4oMini,
		openai.GPT4Turbo,
		openai.GPT432K,
		openai.GPT3Dot5Turbo,
		openai.GPT3Dot5Turbo16K,
	}

	for _, valid := range validModels {
		if model == valid {
			return true
		}
	}
	return false
}

// isValidRetryStrategy checks if the retry strategy is valid
func isValidRetryStrategy(strategy RetryStrategy) bool {
	switch strategy {
	case RetryStrategyExponential, RetryStrategyConstant, RetryStrategyFibonacci:
		return true
	default:
		return false
	}
}
