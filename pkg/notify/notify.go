package notify

import (
	"go.uber.org/zap"

	"github.com/voidshard/flashd/pkg/queue"
	"github.com/voidshard/flashd/pkg/structs"
)

// Observer is told about each phase a job goes through.
//
// Notify is called from the scheduler's worker; it should return quickly.
type Observer interface {
	Notify(e *structs.Event)
}

// Func adapts a function to an Observer
type Func func(e *structs.Event)

func (f Func) Notify(e *structs.Event) {
	f(e)
}

// Multi fans events out to every observer in order
type Multi []Observer

func (m Multi) Notify(e *structs.Event) {
	for _, o := range m {
		if o != nil {
			o.Notify(e)
		}
	}
}

// Log writes events to a zap logger
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	if log == nil {
		log = zap.NewNop()
	}
	return &Log{log: log}
}

func (l *Log) Notify(e *structs.Event) {
	fields := []zap.Field{
		zap.String("job_id", e.JobID),
		zap.String("phase", string(e.Phase)),
		zap.Int64("time", e.Time),
	}
	if e.Phase == structs.PhaseFailed {
		l.log.Warn(e.Message, fields...)
		return
	}
	l.log.Info(e.Message, fields...)
}

// Queue forwards events onto a queue for remote consumers
type Queue struct {
	q   queue.Queue
	log *zap.Logger
}

func NewQueue(q queue.Queue, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{q: q, log: log}
}

// Notify enqueues the event. Failures are logged, never returned; a lost
// notification must not fail a job.
func (q *Queue) Notify(e *structs.Event) {
	_, err := q.q.Enqueue(e)
	if err != nil {
		q.log.Warn("failed to enqueue event", zap.String("job_id", e.JobID), zap.String("phase", string(e.Phase)), zap.Error(err))
	}
}
