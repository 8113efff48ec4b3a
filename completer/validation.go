package completer

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidationResult contains the results of prompt validation
type ValidationResult struct {
	Valid       bool
	Issues      []string
	Suggestions []string
}

// ValidationOptions configures prompt validation behavior
type ValidationOptions struct {
	MaxLength       int
	MinLength       int
	AllowEmpty      bool
	AllowWhitespace bool
	TrimWhitespace  bool
}

// DefaultValidationOptions returns sensible defaults for prompt validation
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{
		MaxLength:       DefaultMaxPromptLength,
		MinLength:       MinPromptLength,
		AllowEmpty:      false,
		AllowWhitespace: false,
		TrimWhitespace:  true,
	}
}

// ValidatePrompt validates a single prompt's text
func ValidatePrompt(prompt string, opts ValidationOptions) ValidationResult {
	result := ValidationResult{Valid: true}

	// Check for empty prompt
	if prompt == "" {
		if !opts.AllowEmpty {
			result.Valid = false
			result.Issues = append(result.Issues, "prompt is empty")
			result.Suggestions = append(result.Suggestions, "provide meaningful prompt text")
		}
		return result
	}

	// Check for whitespace-only prompt
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		if !opts.AllowWhitespace {
			result.Valid = false
			result.Issues = append(result.Issues, "prompt contains only whitespace")
			result.Suggestions = append(result.Suggestions, "provide non-whitespace prompt text")
		}
		return result
	}

	// Use trimmed prompt for length checks if TrimWhitespace is enabled
	checkPrompt := prompt
	if opts.TrimWhitespace {
		checkPrompt = trimmed
	}

	// Check minimum length
	if len(checkPrompt) < opts.MinLength {
		result.Valid = false
		result.Issues = append(result.Issues, fmt.Sprintf("prompt too short (%d chars, minimum %d)",
			len(checkPrompt), opts.MinLength))
		result.Suggestions = append(result.Suggestions, "provide a more detailed prompt")
	}

	// Check maximum length
	if len(checkPrompt) > opts.MaxLength {
		result.Valid = false
		result.Issues = append(result.Issues, fmt.Sprintf("prompt too long (%d chars, maximum %d)",
			len(checkPrompt), opts.MaxLength))
		result.Suggestions = append(result.Suggestions, fmt.Sprintf("reduce prompt to under %d characters", opts.MaxLength))
	}

	return result
}

// ValidatePromptRows validates a batch of prompt rows
func ValidatePromptRows(rows []PromptRow, opts ValidationOptions) ([]ValidationResult, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}

	results := make([]ValidationResult, len(rows))
	hasErrors := false

	for i, row := range rows {
		// Validate index
		if row.Index < 0 {
			results[i] = ValidationResult{
				Valid:       false,
				Issues:      []string{fmt.Sprintf("row index %d is negative", row.Index)},
				Suggestions: []string{"row indices must reflect input order, starting at 0"},
			}
			hasErrors = true
			continue
		}

		// Validate prompt text
		results[i] = ValidatePrompt(row.Prompt, opts)
		if !results[i].Valid {
			hasErrors = true
		}
	}

	if hasErrors {
		// Return results even with errors so caller can see what failed
		return results, fmt.Errorf("validation failed for one or more prompt rows")
	}

	return results, nil
}

// SanitizePrompt cleans and normalizes prompt text
func SanitizePrompt(prompt string) string {
	// Trim leading and trailing whitespace
	prompt = strings.TrimSpace(prompt)

	// Normalize whitespace (replace multiple spaces with single space)
	prompt = normalizeWhitespace(prompt)

	// Remove non-printable characters except newlines and tabs
	prompt = removeNonPrintable(prompt)

	return prompt
}

// SanitizePromptRows sanitizes prompt text for a batch of rows
func SanitizePromptRows(rows []PromptRow) []PromptRow {
	sanitized := make([]PromptRow, len(rows))
	for i, row := range rows {
		sanitized[i] = PromptRow{
			Index:  row.Index,
			Prompt: SanitizePrompt(row.Prompt),
			Extras: row.Extras,
		}
	}
	return sanitized
}

// normalizeWhitespace replaces multiple consecutive spaces with a single space
// but preserves newlines and tabs
func normalizeWhitespace(s string) string {
	var result strings.Builder
	wasSpace := false

	for _, r := range s {
		if r == '\n' || r == '\t' {
			// Preserve newlines and tabs
			result.WriteRune(r)
			wasSpace = false
		} else if unicode.IsSpace(r) {
			if !wasSpace {
				result.WriteRune(' ')
				wasSpace = true
			}
		} else {
			result.WriteRune(r)
			wasSpace = false
		}
	}

	return result.String()
}

// removeNonPrintable removes non-printable characters except newlines and tabs
func removeNonPrintable(s string) string {
	var result strings.Builder

	for _, r := range s {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			result.WriteRune(r)
		}
	}

	return result.String()
}

// ValidateAndSanitize performs both sanitization and validation
func ValidateAndSanitize(rows []PromptRow, opts ValidationOptions) ([]PromptRow, []ValidationResult, error) {
	// First sanitize
	sanitized := SanitizePromptRows(rows)

	// Then validate the sanitized prompts
	results, err := ValidatePromptRows(sanitized, opts)

	return sanitized, results, err
}
