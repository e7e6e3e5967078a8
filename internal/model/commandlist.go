package model

import (
	"errors"
	"fmt"
)

// ErrCommandStreamExhausted is returned when a profiling event references a
// command occurrence beyond what the command stream declares. The two input
// files were captured from different or incompatible runs; no partial output
// is trustworthy after this.
var ErrCommandStreamExhausted = errors.New("command stream exhausted")

// CommandList holds the ordered commands of one firmware queue together with
// a forward-only cursor per filter key.
type CommandList struct {
	Commands []Element

	cursors map[string]int
}

// Advance returns the index of the next command named name at or after
// filter's cursor, then moves that cursor past it.
//
// The profiling data carries no command index, but the firmware issues the
// commands of each queue strictly in order, so the N-th event of a kind must
// correspond to the N-th matching command in the queue. Distinct filters keep
// independent cursors even over the same queue: some event categories replay
// earlier subsequences of a queue the setup events already walked.
func (l *CommandList) Advance(filter, name string) (int, error) {
	if l.cursors == nil {
		l.cursors = make(map[string]int)
	}

	idx := l.cursors[filter]
	for {
		if idx >= len(l.Commands) {
			return 0, fmt.Errorf("no %s left for %s: %w", name, filter, ErrCommandStreamExhausted)
		}
		if l.Commands[idx].Name == name {
			break
		}
		idx++
	}

	l.cursors[filter] = idx + 1
	return idx, nil
}
