package trace

import (
	"errors"
	"fmt"
	"sort"

	"nputrace/internal/model"
)

// ErrInvertedDuration is returned when an end record's timestamp precedes
// its begin's. The output format cannot represent negative durations.
var ErrInvertedDuration = errors.New("end event precedes its begin")

// Finalize runs the post pass once the full log has been consumed: agent
// lifetime spans, span validation and repair, and the trailing process and
// thread metadata records. It returns the complete ordered record set.
func (s *Synthesizer) Finalize() ([]model.TraceEvent, error) {
	s.emitAgentSpans()
	if err := s.repairSpans(); err != nil {
		return nil, err
	}
	s.emitMetadata()
	return s.events, nil
}

// emitAgentSpans adds one begin/end pair per agent that was referenced by at
// least one profiling event, showing each agent's lifetime across the run.
func (s *Synthesizer) emitAgentSpans() {
	for idx := range s.cs.Agents {
		agent := &s.cs.Agents[idx]
		if agent.Start == nil {
			continue
		}

		// Zero-padded index so lexicographic and numeric row order agree.
		thread := fmt.Sprintf("b) Agent %04d (%s)", idx, agent.Element.Name)
		pid, tid := s.intern("b) Command Stream", thread)

		end := *agent.Start
		if agent.End != nil {
			end = *agent.End
		} else {
			s.log.Warn().Int("agent", idx).Msg("agent was started but never ended; closing its span at the start")
		}

		begin := model.TraceEvent{
			Name:  fmt.Sprintf("Agent %d (%s)", idx, agent.Element.Name),
			Phase: model.PhaseBegin,
			Ts:    *agent.Start,
			Pid:   pid,
			Tid:   tid,
			Args:  map[string]any{"agent_xml": agent.Element.Raw},
		}
		s.events = append(s.events, begin)

		endEvent := begin
		endEvent.Phase = model.PhaseEnd
		endEvent.Ts = end
		s.events = append(s.events, endEvent)
	}
}

// repairSpans validates every begin/end pair sharing a (pid, tid) row and
// closes spans the truncated capture left open. Without a synthesized end
// the viewer renders an open span as a zero-width instant, which reads as
// missing data rather than truncation.
func (s *Synthesizer) repairSpans() error {
	var maxTs uint64
	for i := range s.events {
		if s.events[i].Ts > maxTs {
			maxTs = s.events[i].Ts
		}
	}

	open := make(map[threadKey]int)
	for i := range s.events {
		ev := &s.events[i]
		key := threadKey{pid: ev.Pid, tid: ev.Tid}
		switch ev.Phase {
		case model.PhaseBegin:
			if _, ok := open[key]; ok {
				s.log.Warn().Str("name", ev.Name).Uint64("ts", ev.Ts).Msg("second begin before an end; keeping the first")
				continue
			}
			open[key] = i
		case model.PhaseEnd:
			begin, ok := open[key]
			if !ok {
				s.log.Warn().Uint64("ts", ev.Ts).Msg("end event with no begin on its row")
				continue
			}
			if ev.Ts < s.events[begin].Ts {
				return fmt.Errorf("%w: %q begins at %d, ends at %d",
					ErrInvertedDuration, s.events[begin].Name, s.events[begin].Ts, ev.Ts)
			}
			delete(open, key)
		}
	}

	leftover := make([]int, 0, len(open))
	for _, i := range open {
		leftover = append(leftover, i)
	}
	sort.Ints(leftover)

	for _, i := range leftover {
		s.events[i].Name += " (NOT ENDED)"
		end := s.events[i]
		end.Phase = model.PhaseEnd
		end.Ts = maxTs
		s.events = append(s.events, end)
	}
	return nil
}

// emitMetadata appends the records the viewer needs to display labels
// instead of numeric ids, in sorted id order so reruns are byte-identical.
func (s *Synthesizer) emitMetadata() {
	pids := make([]uint64, 0, len(s.processNames))
	for pid := range s.processNames {
		pids = append(pids, pid)
	}
	sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })
	for _, pid := range pids {
		s.events = append(s.events, model.TraceEvent{
			Name:  "process_name",
			Phase: model.PhaseMetadata,
			Pid:   pid,
			Args:  map[string]any{"name": s.processNames[pid]},
		})
	}

	keys := make([]threadKey, 0, len(s.threadNames))
	for k := range s.threadNames {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].pid != keys[j].pid {
			return keys[i].pid < keys[j].pid
		}
		return keys[i].tid < keys[j].tid
	})
	for _, k := range keys {
		s.events = append(s.events, model.TraceEvent{
			Name:  "thread_name",
			Phase: model.PhaseMetadata,
			Pid:   k.pid,
			Tid:   k.tid,
			Args:  map[string]any{"name": s.threadNames[k]},
		})
	}
}
