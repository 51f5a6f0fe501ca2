package controller

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/hdrlab/linstage/pkg/log"
	"github.com/hdrlab/linstage/pkg/safety"
	"github.com/hdrlab/linstage/pkg/sampler"
	"github.com/hdrlab/linstage/pkg/stage"
)

// Controller supervises one linear stage axis.
type Controller struct {
	backend stage.Backend
	cfg     stage.Config
	opts    Options
	logger  *slog.Logger
	events  log.Logger

	// cmd is the command lock. A channel so waiters can give up on ctx.
	cmd chan struct{}

	// inflight is held while a backend command runs, including one whose
	// wait timed out.
	inflight chan struct{}

	// opCancel aborts the in-flight homing run; opID names its owner.
	opMu     sync.Mutex
	opCancel context.CancelCauseFunc
	opID     uint64

	// stops counts Stop calls so a queued Home can tell it was overtaken.
	stops atomic.Uint64

	// Fields below are written with cmd held and under stateMu.
	stateMu   sync.RWMutex
	state     stage.State
	errReason error
	lastErr   error
	homed     bool
	motion    sampler.Motion
	gen       uint64
	session   stage.Session
	sampler   *sampler.Sampler
	port      string
	info      *stage.DeviceInfo
	sessionID string
	epoch     uint64

	sup *supervisor

	// boundaryPending holds the generation of a queued boundary request.
	boundaryPending atomic.Uint64

	onStateChange func(oldState, newState stage.State)
}

// New creates a controller for backend. cfg is validated; an invalid
// configuration returns an error wrapping stage.ErrConfig.
func New(backend stage.Backend, cfg stage.Config, opts Options) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	return &Controller{
		backend:  backend,
		cfg:      cfg,
		opts:     opts,
		logger:   opts.Logger.With("component", "controller"),
		events:   opts.Events,
		cmd:      make(chan struct{}, 1),
		inflight: make(chan struct{}, 1),
		state:    stage.StateDisconnected,
	}, nil
}

// OnStateChange sets a callback for state transitions. The callback runs on
// the command path after the transition and must not issue commands.
func (c *Controller) OnStateChange(fn func(oldState, newState stage.State)) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.onStateChange = fn
}

// State returns the current control state.
func (c *Controller) State() stage.State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// ErrorReason returns the fault that put the controller in StateError, or
// nil in any other state.
func (c *Controller) ErrorReason() error {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.state != stage.StateError {
		return nil
	}
	return c.errReason
}

// LastError returns the error of the most recent failed command.
func (c *Controller) LastError() error {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.lastErr
}

// Status returns the latest snapshot, or the unknown sentinel when no
// session has been sampled. IsHomed reflects the controller's current homing
// result rather than the one seen when the sample was taken.
func (c *Controller) Status() stage.Snapshot {
	c.stateMu.RLock()
	s, homed := c.sampler, c.homed
	c.stateMu.RUnlock()
	if s == nil {
		return stage.UnknownSnapshot()
	}
	snap := s.Snapshot()
	if snap.Known {
		snap.IsHomed = homed
	}
	return snap
}

// Position returns the last sampled position in mm.
func (c *Controller) Position() float64 {
	return c.Status().Position
}

// DistanceFromHome returns the absolute distance from the home position.
func (c *Controller) DistanceFromHome() float64 {
	return math.Abs(c.Position())
}

// IsMoving reports whether the last sample showed motion.
func (c *Controller) IsMoving() bool {
	return c.Status().IsMoving
}

// IsConnected reports whether a session is open.
func (c *Controller) IsConnected() bool {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.session != nil && c.state != stage.StateConnecting
}

// IsHomed reports whether the axis holds a homing reference, as seen by
// Status.
func (c *Controller) IsHomed() bool {
	return c.Status().IsHomed
}

// Config returns the stage configuration.
func (c *Controller) Config() stage.Config {
	return c.cfg
}

// Port returns the port of the current or last session. For auto
// configurations this is the port chosen by discovery.
func (c *Controller) Port() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.port != "" {
		return c.port
	}
	return c.cfg.Port
}

// DeviceInfo returns the identity of the connected device, if known.
func (c *Controller) DeviceInfo() (stage.DeviceInfo, bool) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	if c.info == nil {
		return stage.DeviceInfo{}, false
	}
	return *c.info, true
}

// SessionID returns the identifier of the current session.
func (c *Controller) SessionID() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.sessionID
}

// SampleRate returns the sampler's effective rate in Hz, or zero when not
// sampling.
func (c *Controller) SampleRate() float64 {
	c.stateMu.RLock()
	s := c.sampler
	c.stateMu.RUnlock()
	if s == nil || !s.Running() {
		return 0
	}
	return s.Rate()
}

// currentMotion is the sampler's MotionSource.
func (c *Controller) currentMotion() sampler.Motion {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	m := c.motion
	m.Homed = c.homed
	return m
}

// lock acquires the command lock or gives up when ctx is done.
func (c *Controller) lock(ctx context.Context) error {
	select {
	case c.cmd <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) unlock() {
	<-c.cmd
}

// setState transitions to s. Caller holds cmd.
func (c *Controller) setState(s stage.State, reason string) {
	c.stateMu.Lock()
	old := c.state
	c.state = s
	if s != stage.StateError {
		c.errReason = nil
	}
	cb := c.onStateChange
	c.stateMu.Unlock()

	if old == s {
		return
	}

	c.logger.Info("state change", "from", old, "to", s, "reason", reason)
	c.emit(log.Event{
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: old.String(),
			NewState: s.String(),
			Reason:   reason,
		},
	})

	if cb != nil {
		cb(old, s)
	}
}

// fail records err as the last error. Caller holds cmd.
func (c *Controller) fail(err error) {
	c.stateMu.Lock()
	c.lastErr = err
	c.stateMu.Unlock()
}

// fault records err and enters StateError. Caller holds cmd.
func (c *Controller) fault(err error, reason string) {
	c.stateMu.Lock()
	c.lastErr = err
	c.errReason = err
	c.motion = sampler.Motion{}
	c.gen++
	c.stateMu.Unlock()

	c.logger.Error("stage fault", "error", err, "reason", reason)
	c.emit(log.Event{
		Category: log.CategoryError,
		Error:    &log.ErrorEventData{Message: err.Error(), Context: reason},
	})
	c.setState(stage.StateError, reason)
}

// holdState is the resting state after motion ends. Caller holds stateMu.
func (c *Controller) holdState() stage.State {
	if c.homed {
		return stage.StateHomed
	}
	return stage.StateConnected
}

// setMotion starts a new motion generation and returns it. Caller holds cmd.
func (c *Controller) setMotion(mode sampler.Mode, dir safety.Direction) uint64 {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.gen++
	c.motion = sampler.Motion{Mode: mode, Direction: dir, Generation: c.gen}
	return c.gen
}

// clearMotion ends the current motion generation. Caller holds cmd.
func (c *Controller) clearMotion() {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.gen++
	c.motion = sampler.Motion{}
}

// settle returns to the hold state. Caller holds cmd.
func (c *Controller) settle(reason string) {
	c.stateMu.RLock()
	hold := c.holdState()
	c.stateMu.RUnlock()
	c.setState(hold, reason)
}
