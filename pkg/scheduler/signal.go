package scheduler

import (
	"context"

	"github.com/dukex/operion-engine/pkg/eventbus"
	"github.com/dukex/operion-engine/pkg/events"
)

// Signal wakes the scheduler loop. Notifications coalesce: any number of calls to
// Notify between two receives produce a single wake-up.
type Signal struct {
	ch chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Notify never blocks.
func (s *Signal) Notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *Signal) C() <-chan struct{} {
	return s.ch
}

// WakeOnTaskCreated notifies signal for every task.created event delivered by bus.
// It must be called before bus.Subscribe.
func WakeOnTaskCreated(bus eventbus.EventSubscriber, signal *Signal) error {
	return bus.Handle(events.TaskCreatedEvent, func(context.Context, any) error {
		signal.Notify()

		return nil
	})
}
