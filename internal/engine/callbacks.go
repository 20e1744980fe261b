package engine

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Printing returns a Callback that writes lifecycle events to w as they
// arrive: non-reasoning content deltas as raw text, tool start/complete and
// errors as one line each, and a newline at loop completion. Reasoning
// deltas and all other event types print nothing. Useful for TTY
// front-ends and debugging.
func Printing(w io.Writer) Callback {
	return func(ev Event) {
		switch ev.Type {
		case EventContentDelta:
			if !ev.Reasoning {
				fmt.Fprint(w, ev.Text)
			}
		case EventToolStart:
			fmt.Fprintf(w, "\n[tool %s started]\n", ev.ToolName)
		case EventToolComplete:
			status := "ok"
			if ev.IsError {
				status = "error"
			}
			fmt.Fprintf(w, "[tool %s %s]\n", ev.ToolName, status)
		case EventError:
			fmt.Fprintf(w, "\n[error: %v]\n", ev.Err)
		case EventLoopComplete:
			fmt.Fprintln(w)
		}
	}
}

// Composite fans one event out to several callbacks, in order.
func Composite(callbacks ...Callback) Callback {
	return func(ev Event) {
		for _, cb := range callbacks {
			if cb != nil {
				cb(ev)
			}
		}
	}
}

// Batching defers delivery to an inner Callback behind a buffered queue so
// an expensive consumer (TTY printing, telemetry export) does not throttle
// the loop on every event. Events are unchanged, only deferred: the buffer
// is flushed to the inner callback, in order, once it reaches FlushCount,
// every FlushInterval, and on Flush or Close.
type Batching struct {
	inner      Callback
	flushCount int

	mu  sync.Mutex
	buf []Event

	// deliverMu serializes flushes so batches reach inner in order even
	// when a count-triggered flush races the interval flusher.
	deliverMu sync.Mutex

	stop    chan struct{}
	stopped sync.Once
	done    chan struct{}
}

// NewBatching wraps inner. flushCount <= 0 defaults to 16; flushInterval
// <= 0 defaults to 100ms. Call Close when the wrapped callback is no
// longer needed, or buffered tail events are lost.
func NewBatching(inner Callback, flushCount int, flushInterval time.Duration) *Batching {
	if flushCount <= 0 {
		flushCount = 16
	}
	if flushInterval <= 0 {
		flushInterval = 100 * time.Millisecond
	}
	b := &Batching{
		inner:      inner,
		flushCount: flushCount,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go b.run(flushInterval)
	return b
}

// OnEvent enqueues one event; it is the Callback to hand to the loop.
func (b *Batching) OnEvent(ev Event) {
	b.mu.Lock()
	b.buf = append(b.buf, ev)
	full := len(b.buf) >= b.flushCount
	b.mu.Unlock()
	if full {
		b.Flush()
	}
}

// Flush delivers everything buffered so far to the inner callback.
func (b *Batching) Flush() {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()
	b.mu.Lock()
	batch := b.buf
	b.buf = nil
	b.mu.Unlock()
	for _, ev := range batch {
		b.inner(ev)
	}
}

// Close stops the interval flusher and delivers any remaining events.
func (b *Batching) Close() {
	b.stopped.Do(func() { close(b.stop) })
	<-b.done
	b.Flush()
}

func (b *Batching) run(interval time.Duration) {
	defer close(b.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.Flush()
		case <-b.stop:
			return
		}
	}
}
