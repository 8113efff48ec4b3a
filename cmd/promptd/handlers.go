package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/JohnPlummer/prompt-completer/completer"
)

type handlers struct {
	completer completer.Completer
	logger    *slog.Logger
}

// Health reports service liveness, degraded when the circuit breaker is open.
func (h *handlers) Health(c *gin.Context) {
	health := h.completer.GetHealth(c.Request.Context())
	if !health.Healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"details": health.Details,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// ProcessPrompts accepts a multipart CSV upload, completes every prompt row,
// and returns the result CSV as a download.
func (h *handlers) ProcessPrompts(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file upload"})
		return
	}

	if !isCSVUpload(fileHeader.Header.Get("Content-Type"), fileHeader.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid file format. Please upload a CSV file."})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "could not read uploaded file"})
		return
	}

	jobID := uuid.NewString()
	logger := h.logger.With("job_id", jobID)
	logger.Info("processing uploaded batch",
		"filename", fileHeader.Filename,
		"bytes", len(data))

	out, err := h.completer.ProcessBatch(c.Request.Context(), data)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, completer.ErrMalformedInput), errors.Is(err, completer.ErrEmptyInput):
			status = http.StatusBadRequest
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			status = http.StatusServiceUnavailable
		}
		logger.Error("batch processing failed", "err", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	logger.Info("batch processed", "bytes", len(out))

	c.Header("Content-Disposition", `attachment; filename="processed_prompts.csv"`)
	c.Data(http.StatusOK, "text/csv", out)
}

// isCSVUpload accepts the canonical CSV content type plus the variants
// browsers and Excel actually send, falling back to the file extension.
func isCSVUpload(contentType, filename string) bool {
	switch {
	case strings.HasPrefix(contentType, "text/csv"),
		contentType == "application/csv",
		contentType == "application/vnd.ms-excel":
		return true
	}
	return strings.HasSuffix(strings.ToLower(filename), ".csv")
}
