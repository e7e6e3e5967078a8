package format

import (
	"encoding/json"
	"io"

	"nputrace/internal/model"
)

// WriteTrace writes the trace records to w as an indented JSON array, in
// the order they were synthesized.
func WriteTrace(w io.Writer, events []model.TraceEvent) error {
	if events == nil {
		events = []model.TraceEvent{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(events)
}
