package controller

import (
	"log/slog"
	"time"

	"github.com/hdrlab/linstage/pkg/log"
	"github.com/hdrlab/linstage/pkg/retry"
	"github.com/hdrlab/linstage/pkg/stage"
)

// Default timeouts.
const (
	// DefaultConnectTimeout bounds discovery plus session setup.
	DefaultConnectTimeout = 10 * time.Second

	// DefaultHomeTimeout bounds a homing run.
	DefaultHomeTimeout = 60 * time.Second

	// DefaultCommandTimeout bounds move, velocity and stop dispatch.
	DefaultCommandTimeout = 2 * time.Second
)

// ConfigStore persists the stage configuration and device identity.
type ConfigStore interface {
	Save(cfg stage.Config, info *stage.DeviceInfo) error
}

// ConfigSource loads a previously saved configuration.
type ConfigSource interface {
	Load() (stage.Config, *stage.DeviceInfo, error)
}

// Options configures a Controller. Zero values take defaults.
type Options struct {
	// Logger receives operational logs. Nil discards.
	Logger *slog.Logger

	// Events receives stage events. Nil discards.
	Events log.Logger

	// Discovery resolves stage.PortAuto. Required for auto ports.
	Discovery stage.Discoverer

	// Store saves the configuration when a device identity is first learned.
	Store ConfigStore

	ConnectTimeout time.Duration
	HomeTimeout    time.Duration
	CommandTimeout time.Duration

	// ConnectAttempts is the number of session open attempts per Connect.
	// Attempts are spaced with Backoff and all fit inside ConnectTimeout.
	ConnectAttempts int
	Backoff         retry.Config

	// FailureBudget is passed to the sampler.
	FailureBudget int

	// RequireHomedForMotion rejects MoveTo and SetVelocity until homed.
	RequireHomedForMotion bool

	// OnSample observes every published snapshot. Called from the sampling
	// loop; it must not block.
	OnSample func(stage.Snapshot)
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	o.Events = log.OrNoop(o.Events)
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.HomeTimeout <= 0 {
		o.HomeTimeout = DefaultHomeTimeout
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = DefaultCommandTimeout
	}
	if o.ConnectAttempts < 1 {
		o.ConnectAttempts = 1
	}
	return o
}
