package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	promptcompleter "github.com/JohnPlummer/prompt-completer"
	"github.com/JohnPlummer/prompt-completer/completer"
)

type config struct {
	Port              string
	APIKey            string
	Model             string
	MaxTokens         int
	Temperature       float64
	TimeoutSeconds    int
	ConcurrencyLimit  int
	MaxRetries        int
	PromptColumn      string
	RequestsPerSecond float64
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(getenv("LOG_LEVEL", "info")),
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		fatal(logger, "load config", err)
	}

	info := promptcompleter.GetVersion()
	logger.Info("promptd starting",
		"name", info.Name,
		"version", info.Version,
		"port", cfg.Port,
		"model", cfg.Model,
		"concurrency_limit", cfg.ConcurrencyLimit)

	c, err := completer.New(buildCompleterConfig(cfg))
	if err != nil {
		fatal(logger, "create completer", err)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: newRouter(c, logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "serve", err, "addr", srv.Addr)
		}
	}()
	logger.Info("listening", "addr", srv.Addr)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
}

func loadConfig() (config, error) {
	cfg := config{
		Port:         getenv("PORT", "8080"),
		APIKey:       os.Getenv("OPENAI_API_KEY"),
		Model:        getenv("MODEL", "gpt-3.5-turbo"),
		PromptColumn: getenv("PROMPT_COLUMN", "prompt"),
	}

	if cfg.APIKey == "" {
		return config{}, errors.New("OPENAI_API_KEY is required")
	}

	maxTokens, err := parsePositiveInt(getenv("MAX_TOKENS", "500"), "MAX_TOKENS")
	if err != nil {
		return config{}, err
	}
	cfg.MaxTokens = maxTokens

	timeout, err := parsePositiveInt(getenv("TIMEOUT_SECONDS", "30"), "TIMEOUT_SECONDS")
	if err != nil {
		return config{}, err
	}
	cfg.TimeoutSeconds = timeout

	concurrency, err := parsePositiveInt(getenv("CONCURRENCY_LIMIT", "5"), "CONCURRENCY_LIMIT")
	if err != nil {
		return config{}, err
	}
	cfg.ConcurrencyLimit = concurrency

	retries, err := parsePositiveInt(getenv("MAX_RETRIES", "3"), "MAX_RETRIES")
	if err != nil {
		return config{}, err
	}
	cfg.MaxRetries = retries

	temperature, err := parseNonNegativeFloat(getenv("TEMPERATURE", "0"), "TEMPERATURE")
	if err != nil {
		return config{}, err
	}
	cfg.Temperature = temperature

	rps, err := parseNonNegativeFloat(getenv("REQUESTS_PER_SECOND", "0"), "REQUESTS_PER_SECOND")
	if err != nil {
		return config{}, err
	}
	cfg.RequestsPerSecond = rps

	return cfg, nil
}

func buildCompleterConfig(cfg config) completer.Config {
	c := completer.NewDefaultConfig(cfg.APIKey).
		WithModel(cfg.Model).
		WithMaxTokens(cfg.MaxTokens).
		WithTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second).
		WithMaxConcurrent(cfg.ConcurrencyLimit).
		WithPromptColumn(cfg.PromptColumn).
		WithRetryStrategy(completer.RetryStrategyExponential, cfg.MaxRetries)

	if cfg.Temperature > 0 {
		c = c.WithTemperature(float32(cfg.Temperature))
	}
	if cfg.RequestsPerSecond > 0 {
		c = c.WithRequestsPerSecond(cfg.RequestsPerSecond)
	}

	return c
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func parsePositiveInt(value string, name string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be greater than zero (got %d)", name, v)
	}
	return v, nil
}

func parseNonNegativeFloat(value string, name string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative (got %v)", name, v)
	}
	return v, nil
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
