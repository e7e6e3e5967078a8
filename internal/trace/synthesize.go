package trace

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"nputrace/internal/model"
)

// ErrUnmatchedEnd is returned when an end event references an id with no
// still-open start. The profiling log is malformed.
var ErrUnmatchedEnd = errors.New("end event without matching start")

type threadKey struct {
	pid uint64
	tid uint64
}

// openEvent remembers where a started timeline event was placed so its end
// record lands on the same row.
type openEvent struct {
	pid     uint64
	tid     uint64
	agentID int // -1 when the start was not agent-attributable
}

// Synthesizer drives one conversion run. It owns all mutable correlation
// state: the catalogue cursors (inside cs), the agent lifetimes, the
// in-progress event table and the MCE bank counter. A Synthesizer is
// single-use and not safe for concurrent use; the command stream must be
// fully parsed before the first entry is processed.
type Synthesizer struct {
	cs  *model.CommandStream
	log zerolog.Logger

	mceBank      int
	inProgress   map[uint64]openEvent
	processNames map[uint64]string
	threadNames  map[threadKey]string
	events       []model.TraceEvent
}

// NewSynthesizer prepares a run over the given command stream.
func NewSynthesizer(cs *model.CommandStream, log zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		cs:  cs,
		log: log,
		// Toggled before use, so the first MCE stripe lands on bank 0.
		mceBank:      1,
		inProgress:   make(map[uint64]openEvent),
		processNames: make(map[uint64]string),
		threadNames:  make(map[threadKey]string),
	}
}

// Convert runs the whole pipeline: one pass over entries in log order,
// followed by finalization.
func Convert(cs *model.CommandStream, entries []model.Entry, log zerolog.Logger) ([]model.TraceEvent, error) {
	s := NewSynthesizer(cs, log)
	if err := s.Process(entries); err != nil {
		return nil, err
	}
	return s.Finalize()
}

// Process walks the profiling entries in order, emitting one trace record
// per entry. Any error is fatal for the run; partial output is not valid.
func (s *Synthesizer) Process(entries []model.Entry) error {
	for _, e := range entries {
		if err := s.processEntry(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *Synthesizer) processEntry(e model.Entry) error {
	switch e.Type {
	case model.EntryTimelineStart:
		p, err := s.classify(e)
		if err != nil {
			return err
		}
		pid, tid := s.intern(p.process, p.thread)

		if p.agentID >= 0 {
			agent := &s.cs.Agents[p.agentID]
			if agent.Start == nil {
				ts := e.Timestamp
				agent.Start = &ts
			}
		}
		s.inProgress[e.ID] = openEvent{pid: pid, tid: tid, agentID: p.agentID}

		s.events = append(s.events, model.TraceEvent{
			Name:  p.name,
			Phase: model.PhaseBegin,
			Ts:    e.Timestamp,
			Pid:   pid,
			Tid:   tid,
			Args:  p.args,
			Color: p.color,
		})
		return nil

	case model.EntryTimelineInstant:
		p, err := s.classify(e)
		if err != nil {
			return err
		}
		pid, tid := s.intern(p.process, p.thread)

		s.events = append(s.events, model.TraceEvent{
			Name:  p.name,
			Phase: model.PhaseInstant,
			Ts:    e.Timestamp,
			Pid:   pid,
			Tid:   tid,
			Args:  p.args,
			Color: p.color,
		})
		return nil

	case model.EntryTimelineEnd:
		open, ok := s.inProgress[e.ID]
		if !ok {
			return fmt.Errorf("%w: id %d", ErrUnmatchedEnd, e.ID)
		}
		delete(s.inProgress, e.ID)

		if open.agentID >= 0 {
			agent := &s.cs.Agents[open.agentID]
			if agent.End == nil || *agent.End < e.Timestamp {
				ts := e.Timestamp
				agent.End = &ts
			}
		}

		s.events = append(s.events, model.TraceEvent{
			Phase: model.PhaseEnd,
			Ts:    e.Timestamp,
			Pid:   open.pid,
			Tid:   open.tid,
		})
		return nil

	case model.EntryCounterSample:
		pid, tid := s.intern("z) Counters", "<unused>")
		s.events = append(s.events, model.TraceEvent{
			Name:  e.CounterName,
			Phase: model.PhaseCounter,
			Ts:    e.Timestamp,
			Pid:   pid,
			Tid:   tid,
			Args:  map[string]any{e.CounterName: e.CounterValue},
		})
		return nil

	default:
		return fmt.Errorf("unknown entry type %q", e.Type)
	}
}

// intern hashes the display labels into numeric ids and records the
// id-to-label mappings for the trailing metadata records.
func (s *Synthesizer) intern(process, thread string) (pid, tid uint64) {
	pid = labelID(process)
	s.processNames[pid] = process
	tid = labelID(thread)
	s.threadNames[threadKey{pid: pid, tid: tid}] = thread
	return pid, tid
}

// labelID is a pure function of the label so identical inputs reproduce
// byte-identical output. Two distinct labels colliding on a 64-bit digest is
// not defended against.
func labelID(label string) uint64 {
	return xxhash.Sum64String(label)
}
