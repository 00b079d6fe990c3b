package usecase

import (
	"sync/atomic"
	"time"

	"github.com/mhduong/docsorter/internal/core/domain"
)

type EventKind string

const (
	EventProgress EventKind = "progress"
	EventLog      EventKind = "log"
)

// Event is one observable step of a pipeline execution.
type Event struct {
	Kind     EventKind
	Progress domain.Progress
	Log      domain.LogEntry
}

// Emitter decouples the pipeline from status persistence through a bounded
// channel. Emit never blocks: when the consumer falls behind, events are
// dropped and counted instead of stalling document processing.
type Emitter struct {
	ch      chan Event
	dropped atomic.Int64
	closed  atomic.Bool
}

const defaultEventBuffer = 256

func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Emitter{ch: make(chan Event, buffer)}
}

func (e *Emitter) Events() <-chan Event { return e.ch }

// Close signals the consumer that no more events follow. Emit calls after
// Close are ignored.
func (e *Emitter) Close() {
	if e.closed.CompareAndSwap(false, true) {
		close(e.ch)
	}
}

// Dropped reports how many events were discarded due to a full buffer.
func (e *Emitter) Dropped() int64 { return e.dropped.Load() }

func (e *Emitter) emit(ev Event) {
	if e.closed.Load() {
		return
	}
	select {
	case e.ch <- ev:
	default:
		e.dropped.Add(1)
	}
}

func (e *Emitter) Progress(p domain.Progress) {
	e.emit(Event{Kind: EventProgress, Progress: p})
}

func (e *Emitter) Log(level, msg, detail string) {
	e.emit(Event{Kind: EventLog, Log: domain.LogEntry{
		TS:     time.Now().UTC(),
		Level:  level,
		Msg:    msg,
		Detail: detail,
	}})
}
