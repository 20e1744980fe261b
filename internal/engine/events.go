package engine

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the callback interface's lifecycle events (§6).
type EventType string

const (
	EventLoopStart       EventType = "event_loop_start"
	EventCycleStart      EventType = "cycle_start"
	EventModelStart      EventType = "model_start"
	EventContentDelta    EventType = "content_delta"
	EventToolStart       EventType = "tool_start"
	EventToolComplete    EventType = "tool_complete"
	EventModelComplete   EventType = "model_complete"
	EventEvaluationStart EventType = "evaluation_start"
	EventEvaluationDone  EventType = "evaluation_complete"
	EventCycleComplete   EventType = "cycle_complete"
	EventLoopComplete    EventType = "event_loop_complete"
	EventError           EventType = "error"
)

// Event is one callback notification. Only the fields relevant to Type are
// populated.
type Event struct {
	Type     EventType
	Sequence uint64
	Time     time.Time
	RunID    uuid.UUID
	CycleID  uuid.UUID

	// ContentDelta
	Reasoning bool
	Text      string

	// ToolStart/ToolComplete
	ToolName   string
	ToolCallID string
	IsError    bool

	// EvaluationDone
	Continue bool

	Err error
}

// Callback receives lifecycle events. It has no return value: a handler
// cannot abort or influence the loop (per §6), and any error handling it
// needs is the handler's own responsibility. emit invokes it synchronously,
// so a slow or panicking handler blocks or kills the calling goroutine.
type Callback func(Event)

// emitter stamps events with a monotonic per-run sequence number and the
// run/cycle identity, then forwards them to the configured Callback.
type emitter struct {
	runID    uuid.UUID
	cycleID  uuid.UUID
	sequence uint64
	cb       Callback
}

func newEmitter(cb Callback) *emitter {
	return &emitter{runID: uuid.New(), cb: cb}
}

func (e *emitter) setCycle(id uuid.UUID) { e.cycleID = id }

// eventsPerSecond reports the emit rate over elapsed, for the result's
// performance surface.
func (e *emitter) eventsPerSecond(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	return float64(atomic.LoadUint64(&e.sequence)) / elapsed.Seconds()
}

func (e *emitter) emit(ev Event) {
	ev.Sequence = atomic.AddUint64(&e.sequence, 1)
	if e.cb == nil {
		return
	}
	ev.Time = time.Now()
	ev.RunID = e.runID
	ev.CycleID = e.cycleID
	e.cb(ev)
}

// StatsCollector accumulates simple counters from a stream of Events; it is
// a Callback-compatible convenience for callers that just want totals.
type StatsCollector struct {
	Cycles        int
	ToolCalls     int
	ToolFailures  int
	ContentDeltas int
	Errors        int
}

func (s *StatsCollector) OnEvent(ev Event) {
	switch ev.Type {
	case EventCycleComplete:
		s.Cycles++
	case EventToolComplete:
		s.ToolCalls++
		if ev.IsError {
			s.ToolFailures++
		}
	case EventContentDelta:
		s.ContentDeltas++
	case EventError:
		s.Errors++
	}
}
