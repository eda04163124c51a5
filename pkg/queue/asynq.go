package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/hibiken/asynq"

	"github.com/voidshard/flashd/pkg/structs"
)

const (
	asyncEventTask = "flashd:event"

	// events are json, which never contains a raw newline
	asyncAggSep = "\n"
)

// Asynq is a Queue backed by redis via github.com/hibiken/asynq.
//
// Events are grouped by job, so a handler sees a job's events together & in order.
type Asynq struct {
	opts *Options

	cli *asynq.Client

	// if register is called we're intended to start a server
	lock sync.Mutex
	mux  *asynq.ServeMux
	srv  *asynq.Server
	done chan struct{}
}

func NewAsynqQueue(opts *Options) (*Asynq, error) {
	opts.SetDefaults()
	cli := asynq.NewClient(redisOpts(opts))
	return &Asynq{
		opts: opts,
		cli:  cli,
		done: make(chan struct{}),
	}, nil
}

func (a *Asynq) Close() error {
	a.lock.Lock()
	defer a.lock.Unlock()

	select {
	case <-a.done:
		return nil // already closed
	default:
		close(a.done)
	}

	if a.srv != nil {
		a.srv.Stop()
		a.srv.Shutdown()
	}
	return a.cli.Close()
}

func (a *Asynq) Register(handler func(events []*structs.Event) error) error {
	if a.mux == nil {
		a.buildServer()
	}
	a.mux.HandleFunc(asyncEventTask, func(ctx context.Context, t *asynq.Task) error {
		events, err := deaggregateEvents(t)
		if len(events) == 0 {
			if err != nil {
				// a payload that won't decode won't decode next time either
				return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
			}
			return nil
		}
		return handler(events)
	})
	return nil
}

func (a *Asynq) Run() error {
	if a.mux == nil {
		return fmt.Errorf("no handlers registered")
	}
	err := a.srv.Start(a.mux)
	if err != nil {
		return err
	}
	<-a.done
	return nil
}

func (a *Asynq) Enqueue(e *structs.Event) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	qtask := asynq.NewTask(asyncEventTask, data)
	info, err := a.cli.Enqueue(
		qtask,
		asynq.Queue(a.opts.Name),
		asynq.Group(e.JobID),
		asynq.MaxRetry(a.opts.MaxRetry),
	)
	if err != nil {
		return "", err
	}
	return info.ID, nil
}

func (a *Asynq) buildServer() {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.mux != nil {
		// someone locked and set this first
		return
	}
	srv := asynq.NewServer(
		redisOpts(a.opts),
		asynq.Config{
			Concurrency:      1,
			Queues:           map[string]int{a.opts.Name: 1},
			GroupAggregator:  asynq.GroupAggregatorFunc(aggregate),
			GroupMaxSize:     a.opts.AggMaxSize,
			GroupMaxDelay:    a.opts.AggMaxDelay,
			GroupGracePeriod: defaultAggGracePeriod,
		},
	)
	a.srv = srv
	a.mux = asynq.NewServeMux()
}

func redisOpts(opts *Options) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: opts.URL, TLSConfig: opts.TLSConfig}
}

// aggregate joins the payloads of a group (one job's events) into one task
func aggregate(group string, tasks []*asynq.Task) *asynq.Task {
	var b bytes.Buffer
	for _, t := range tasks {
		if t == nil || len(t.Payload()) == 0 {
			continue
		}
		b.Write(t.Payload())
		b.WriteString(asyncAggSep)
	}
	return asynq.NewTask(asyncEventTask, b.Bytes())
}

// deaggregateEvents splits a task back into events. Lines that don't decode are
// skipped & reported together.
func deaggregateEvents(t *asynq.Task) ([]*structs.Event, error) {
	var errs error
	events := []*structs.Event{}
	for _, load := range bytes.Split(t.Payload(), []byte(asyncAggSep)) {
		load = bytes.TrimSpace(load)
		if len(load) == 0 {
			continue
		}
		e := &structs.Event{}
		err := json.Unmarshal(load, e)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		events = append(events, e)
	}
	return events, errs
}
