package completer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
)

// ExtractRows parses tabular input bytes (CSV with a header row) into an
// ordered sequence of prompt rows. The header must contain promptColumn;
// every other column is carried through unchanged. The transform is pure:
// the same input bytes always yield the same rows.
func ExtractRows(data []byte, promptColumn string) ([]PromptRow, error) {
	if promptColumn == "" {
		promptColumn = "prompt"
	}

	// Excel exports commonly carry a UTF-8 BOM
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedInput, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: input has no header row", ErrMalformedInput)
	}

	header := records[0]
	promptIdx := -1
	for i, name := range header {
		if name == promptColumn {
			promptIdx = i
			break
		}
	}
	if promptIdx == -1 {
		return nil, fmt.Errorf("%w: input is missing required column %q", ErrMalformedInput, promptColumn)
	}

	dataRows := records[1:]
	if len(dataRows) == 0 {
		return nil, ErrEmptyInput
	}

	rows := make([]PromptRow, len(dataRows))
	for i, record := range dataRows {
		extras := make([]ExtraColumn, 0, len(header)-1)
		for j, name := range header {
			if j == promptIdx {
				continue
			}
			extras = append(extras, ExtraColumn{Name: name, Value: record[j]})
		}
		rows[i] = PromptRow{
			Index:  i,
			Prompt: record[promptIdx],
			Extras: extras,
		}
	}

	slog.Debug("Extracted prompt rows",
		"rows", len(rows),
		"columns", len(header),
		"prompt_column", promptColumn)

	return rows, nil
}
