package toolchain

import (
	"time"
)

const (
	defaultExecutable   = "esphome"
	defaultOTAPort      = 3232
	defaultProbeTimeout = 2 * time.Second
	defaultWaitDelay    = 5 * time.Second
)

// Options for the esphome toolchain
type Options struct {
	// Executable is the default esphome binary. Defaults to "esphome" (from $PATH).
	Executable string

	// Versions maps a builder id to an esphome binary, ie. one installed in it's own
	// virtualenv per release.
	Versions map[string]string

	// OTAPort is probed before a network deploy. Defaults to 3232.
	OTAPort int

	// ProbeTimeout bounds the OTA probe. Defaults to 2s.
	ProbeTimeout time.Duration

	// WaitDelay is how long we wait for output to drain after a killed process exits.
	// Defaults to 5s.
	WaitDelay time.Duration
}

func (o *Options) SetDefaults() {
	if o.Executable == "" {
		o.Executable = defaultExecutable
	}
	if o.Versions == nil {
		o.Versions = map[string]string{}
	}
	if o.OTAPort <= 0 {
		o.OTAPort = defaultOTAPort
	}
	if o.ProbeTimeout <= 0 {
		o.ProbeTimeout = defaultProbeTimeout
	}
	if o.WaitDelay <= 0 {
		o.WaitDelay = defaultWaitDelay
	}
}
