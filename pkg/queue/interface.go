package queue

import (
	"github.com/voidshard/flashd/pkg/structs"
)

// Queue carries job events to remote consumers (dashboards, chat bots, whatever).
type Queue interface {
	// Register an event handler. This is called when events are dequeued.
	//
	// The handler is passed a slice of events for a single job; this is to allow for batch
	// processing if the Queue in use supports it (otherwise, you'll always get a single item
	// in the slice). Returning an error causes the batch to be redelivered.
	Register(handler func(events []*structs.Event) error) error

	// Run the queue & process events (via Register funcs). This blocks until Close() is called.
	Run() error

	// Enqueue an event. If it supports it, the Queue will return a unique id for the queued event.
	Enqueue(e *structs.Event) (string, error)

	// Close & shutdown the queue.
	Close() error
}
