package sequencer

import (
	"fmt"
	"time"

	"github.com/yoanbernabeu/provisioner/internal/transport"
)

// EventKind identifies a progress event.
type EventKind int

const (
	RunStarted EventKind = iota
	StepStarted
	StepFinished
	StepSkipped
	RunFinished
)

func (k EventKind) String() string {
	switch k {
	case RunStarted:
		return "run-started"
	case StepStarted:
		return "step-started"
	case StepFinished:
		return "step-finished"
	case StepSkipped:
		return "step-skipped"
	case RunFinished:
		return "run-finished"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Event is one progress notification. Command and Result carry redacted
// text only. Index is zero-based; Total is the number of steps in the run.
type Event struct {
	RunID   string
	Kind    EventKind
	Time    time.Time
	Index   int
	Total   int
	Name    string
	Command string
	Result  *transport.Result
	Outcome *RunOutcome
}

// Observer receives progress events in order, on the run's goroutine.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Notify implements Observer.
func (f ObserverFunc) Notify(e Event) { f(e) }

// Observers fans an event out to each observer in order.
type Observers []Observer

// Notify implements Observer.
func (o Observers) Notify(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Notify(e)
		}
	}
}
