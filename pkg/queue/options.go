package queue

import (
	"crypto/tls"
	"time"
)

const (
	defaultQueueName      = "flashd:events"
	defaultMaxRetry       = 3
	defaultAggMaxSize     = 100
	defaultAggMaxDelay    = 2 * time.Second
	defaultAggGracePeriod = time.Second // asynq's minimum
)

// Options are options for the queue.
type Options struct {
	// URL is the redis address we'll connect to (host:port).
	URL string

	// TLSConfig needed to connect to the queue (optional).
	TLSConfig *tls.Config

	// Name of the queue. Defaults to "flashd:events"
	Name string

	// MaxRetry is how many times a batch is redelivered if a handler fails. Defaults to 3.
	MaxRetry int

	// AggMaxSize & AggMaxDelay bound how many events (of one job) are handed to a
	// handler at once & how long we wait to gather them.
	AggMaxSize  int
	AggMaxDelay time.Duration
}

func (o *Options) SetDefaults() {
	if o.Name == "" {
		o.Name = defaultQueueName
	}
	if o.MaxRetry <= 0 {
		o.MaxRetry = defaultMaxRetry
	}
	if o.AggMaxSize <= 0 {
		o.AggMaxSize = defaultAggMaxSize
	}
	if o.AggMaxDelay <= 0 {
		o.AggMaxDelay = defaultAggMaxDelay
	}
}
