package api

import (
	"time"
)

const (
	defAddr         = "127.0.0.1:8080"
	defReadTimeout  = 15 * time.Second
	defWriteTimeout = 15 * time.Second
	defShutdownWait = 30 * time.Second
)

// Options passed to an API server on creation
type Options struct {
	// Addr to listen on
	Addr string

	// Static is an optional directory of files (ie. a dashboard) served under /
	Static string

	// Debug adds per-request logging
	Debug bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ShutdownWait is how long in-flight requests get to finish on Close
	ShutdownWait time.Duration
}

func (o *Options) SetDefaults() {
	if o.Addr == "" {
		o.Addr = defAddr
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = defReadTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defWriteTimeout
	}
	if o.ShutdownWait <= 0 {
		o.ShutdownWait = defShutdownWait
	}
}
