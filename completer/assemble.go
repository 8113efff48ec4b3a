package completer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"sort"
)

// AssembleResults pairs rows with their outcomes positionally and returns one
// result per row, sorted by original row index. Scheduler concurrency never
// leaks into output ordering: whatever order outcomes completed in, the
// result sequence follows the input.
func AssembleResults(rows []PromptRow, outcomes []CompletionOutcome) ([]ResultRow, error) {
	if len(outcomes) != len(rows) {
		return nil, fmt.Errorf("%w: %d outcomes for %d rows", ErrSerialization, len(outcomes), len(rows))
	}

	results := make([]ResultRow, len(rows))
	for i, row := range rows {
		results[i] = ResultRow{Row: row, Outcome: outcomes[i]}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Row.Index < results[j].Row.Index
	})

	return results, nil
}

// MarshalResultsCSV serializes result rows into output CSV bytes. Columns are
// the passthrough columns in original order, then the prompt column, then
// completion and error. The error column holds the ErrorKind name and is
// empty for successful rows.
func MarshalResultsCSV(results []ResultRow, promptColumn string) ([]byte, error) {
	if promptColumn == "" {
		promptColumn = "prompt"
	}

	var extras []ExtraColumn
	if len(results) > 0 {
		extras = results[0].Row.Extras
	}

	header := make([]string, 0, len(extras)+3)
	for _, col := range extras {
		header = append(header, col.Name)
	}
	header = append(header, promptColumn, "completion", "error")

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	for _, result := range results {
		if len(result.Row.Extras) != len(extras) {
			return nil, fmt.Errorf("%w: row %d has %d passthrough columns, expected %d",
				ErrSerialization, result.Row.Index, len(result.Row.Extras), len(extras))
		}

		record := make([]string, 0, len(extras)+3)
		for _, col := range result.Row.Extras {
			record = append(record, col.Value)
		}
		record = append(record, result.Row.Prompt, result.Outcome.Text, string(result.Outcome.Kind))

		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	return buf.Bytes(), nil
}
