package model

// Element is one parsed agent or command node from the command stream dump.
// Fields holds the text content of its simple child elements keyed by child
// name. Raw is the verbatim (de-indented) source slice of the element; it is
// carried into the output trace for inspection, never reparsed.
type Element struct {
	Name   string
	Fields map[string]string
	Raw    string
}

// Agent is one hardware pipeline participant declared under <AGENTS>, in
// declaration order (slice index is the agent id). Start and End are filled
// in by the synthesis pass from the earliest and latest profiling events
// attributed to the agent; nil means the agent was never referenced.
type Agent struct {
	Element Element
	Start   *uint64
	End     *uint64
}

// CommandStream is everything extracted from a command stream dump: the
// agent list and the four firmware command queues.
type CommandStream struct {
	Agents []Agent
	DmaRd  CommandList
	DmaWr  CommandList
	Mce    CommandList
	Ple    CommandList
}

// Entry type tags in the profiling dump.
const (
	EntryTimelineStart   = "TimelineEventStart"
	EntryTimelineInstant = "TimelineEventInstant"
	EntryTimelineEnd     = "TimelineEventEnd"
	EntryCounterSample   = "CounterSample"
)

// Entry is one record of the profiling dump.
//
// Timestamps are nanoseconds and are passed through to the output without
// conversion. The trace viewer assumes microseconds, so durations display
// 1000x too long; converting would round away the sub-microsecond precision,
// which is the worse trade.
type Entry struct {
	Type         string
	Timestamp    uint64
	ID           uint64
	Category     string
	Metadata     map[string]any
	CounterName  string
	CounterValue uint64

	// Raw is the full decoded entry object, embedded under args.entry in the
	// output so the original record stays inspectable in the viewer.
	Raw map[string]any
}

// Phase tags of the trace event format. These and the TraceEvent field names
// are a fixed contract with the viewer.
const (
	PhaseBegin    = "B"
	PhaseEnd      = "E"
	PhaseInstant  = "I"
	PhaseCounter  = "C"
	PhaseMetadata = "M"
)

// TraceEvent is one record of the output document.
type TraceEvent struct {
	Name  string         `json:"name,omitempty"`
	Phase string         `json:"ph"`
	Ts    uint64         `json:"ts"`
	Pid   uint64         `json:"pid"`
	Tid   uint64         `json:"tid,omitempty"`
	Args  map[string]any `json:"args,omitempty"`
	Color string         `json:"cname,omitempty"`
}
