package parser

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"nputrace/internal/model"
)

// rawEntry mirrors one record of the profiling entries array. Only the
// fields the converter interprets are named; the full object is retained
// separately for display.
type rawEntry struct {
	Type         string         `json:"type"`
	Timestamp    uint64         `json:"timestamp"`
	ID           uint64         `json:"id"`
	Category     string         `json:"metadata_category"`
	Metadata     map[string]any `json:"metadata"`
	CounterName  string         `json:"counter_name"`
	CounterValue uint64         `json:"counter_value"`
}

// ReadProfilingEntries loads the profiling dump at path.
func ReadProfilingEntries(path string) ([]model.Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profiling dump: %w", err)
	}
	defer file.Close()

	entries, err := ParseProfilingEntries(file)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return entries, nil
}

// ParseProfilingEntries decodes the JSON array of profiling records from r,
// preserving input order.
func ParseProfilingEntries(r io.Reader) ([]model.Entry, error) {
	var records []json.RawMessage
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("unmarshal profiling entries: %w", err)
	}

	entries := make([]model.Entry, 0, len(records))
	for i, rec := range records {
		var raw rawEntry
		if err := json.Unmarshal(rec, &raw); err != nil {
			return nil, fmt.Errorf("unmarshal entry %d: %w", i, err)
		}

		var full map[string]any
		if err := json.Unmarshal(rec, &full); err != nil {
			return nil, fmt.Errorf("unmarshal entry %d: %w", i, err)
		}

		entries = append(entries, model.Entry{
			Type:         raw.Type,
			Timestamp:    raw.Timestamp,
			ID:           raw.ID,
			Category:     raw.Category,
			Metadata:     raw.Metadata,
			CounterName:  raw.CounterName,
			CounterValue: raw.CounterValue,
			Raw:          full,
		})
	}

	return entries, nil
}
