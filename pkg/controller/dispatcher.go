package controller

import (
	"context"
	"fmt"

	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/klog/v2"
)

// Handler processes one event kind.
type Handler func(ctx context.Context, ev Event) error

// Dispatcher demultiplexes OpenFlow events to per-kind handlers from a
// single loop. Submit never blocks; a full buffer drops the event.
type Dispatcher struct {
	handlers map[EventKind]Handler
	events   chan Event
}

func NewDispatcher(buffer int) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[EventKind]Handler),
		events:   make(chan Event, buffer),
	}
}

// Handle registers h for kind. Call before Run.
func (d *Dispatcher) Handle(kind EventKind, h Handler) {
	d.handlers[kind] = h
}

func (d *Dispatcher) Submit(ev Event) bool {
	select {
	case d.events <- ev:
		return true
	default:
		eventsDropped.WithLabelValues(string(ev.Kind())).Inc()
		klog.V(4).Infof("Event buffer full, dropping %s", ev.Kind())
		return false
	}
}

// Run handles events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	defer utilruntime.HandleCrash()

	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.events:
			d.dispatch(ctx, ev)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev Event) {
	h, ok := d.handlers[ev.Kind()]
	if !ok {
		utilruntime.HandleError(fmt.Errorf("no handler for event %s", ev.Kind()))
		return
	}
	eventsHandled.WithLabelValues(string(ev.Kind())).Inc()
	if err := h(ctx, ev); err != nil {
		utilruntime.HandleError(fmt.Errorf("handling %s: %w", ev.Kind(), err))
	}
}
