package controller

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/hdrlab/linstage/pkg/discovery"
	"github.com/hdrlab/linstage/pkg/log"
	"github.com/hdrlab/linstage/pkg/retry"
	"github.com/hdrlab/linstage/pkg/safety"
	"github.com/hdrlab/linstage/pkg/sampler"
	"github.com/hdrlab/linstage/pkg/stage"
)

// Connect opens a backend session and starts sampling.
//
// An auto port is resolved through Discovery, taking the first device. A
// connection failure leaves the controller Disconnected; exceeding
// ConnectTimeout moves it to Error. Connecting while connected returns true.
func (c *Controller) Connect(ctx context.Context) bool {
	if err := c.lock(ctx); err != nil {
		c.fail(err)
		return false
	}
	defer c.unlock()

	cmd := newCommand(log.OpConnect, log.OriginCaller)
	err := c.connect(ctx)
	c.done(cmd, err)
	return err == nil
}

func (c *Controller) connect(ctx context.Context) error {
	c.stateMu.RLock()
	state, session := c.state, c.session
	c.stateMu.RUnlock()

	if session != nil && state != stage.StateError {
		return nil
	}
	fromError := state == stage.StateError
	if session != nil {
		c.teardown()
	}

	c.setState(stage.StateConnecting, "connect")

	connCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	failed := func(err error) error {
		c.fail(err)
		switch {
		case errors.Is(err, stage.ErrTimeout):
			c.fault(err, "connect timeout")
		case fromError:
			c.fault(err, "reconnect failed")
		default:
			c.setState(stage.StateDisconnected, "connect failed")
		}
		return err
	}

	port, err := c.resolvePort(connCtx)
	if err != nil {
		return failed(err)
	}

	session, err = c.open(connCtx, port)
	if err != nil {
		return failed(err)
	}

	homed := c.queryHomed(connCtx, session)
	info := c.identify(connCtx, session)

	c.stateMu.Lock()
	c.epoch++
	epoch := c.epoch
	c.session = session
	c.port = port
	c.homed = homed
	c.sessionID = uuid.NewString()
	sessionID := c.sessionID
	learned := info != nil && (c.info == nil || *c.info != *info)
	if info != nil {
		c.info = info
	}
	c.stateMu.Unlock()

	sup := c.startSupervisor()
	opts := sampler.Options{
		Rate:          c.cfg.ReadingRateHz,
		FailureBudget: c.opts.FailureBudget,
		Limits:        c.cfg.PositionLimit,
		Motion:        sampler.MotionFunc(c.currentMotion),
		OnSample:      c.opts.OnSample,
		Logger:        c.opts.Logger,
		Events:        c.events,
		SessionID:     sessionID,
		Port:          port,
	}
	c.samplerCallbacks(sup, epoch, &opts)
	smp := sampler.New(c.backend, session, opts)

	if err := smp.Start(connCtx); err != nil {
		sup.stop()
		_ = session.Close()
		c.stateMu.Lock()
		c.session = nil
		c.stateMu.Unlock()
		return failed(classify(err, stage.ErrConnection))
	}

	c.stateMu.Lock()
	c.sampler = smp
	c.sup = sup
	c.stateMu.Unlock()

	if learned {
		c.save(port, info)
	}

	c.logger.Info("connected", "port", port, "homed", homed, "session", sessionID)
	c.setState(stage.StateConnected, "connect")
	return nil
}

// resolvePort returns the configured port or the first discovered device.
func (c *Controller) resolvePort(ctx context.Context) (string, error) {
	if !c.cfg.IsAutoPort() {
		return c.cfg.Port, nil
	}
	if c.opts.Discovery == nil {
		return "", fmt.Errorf("%w: auto port requires discovery", stage.ErrConnection)
	}

	devices, err := await(ctx, nil, c.opts.Discovery.Discover, nil)
	if err != nil {
		return "", classify(err, stage.ErrConnection)
	}
	dev, err := discovery.First(devices)
	if err != nil {
		return "", fmt.Errorf("%w: %w", stage.ErrConnection, err)
	}
	c.logger.Info("auto port selected", "port", dev.Port, "device", dev.String(), "candidates", len(devices))
	return dev.Port, nil
}

// open connects with retries inside ctx.
func (c *Controller) open(ctx context.Context, port string) (stage.Session, error) {
	var session stage.Session
	err := retry.Do(ctx, c.opts.ConnectAttempts, retry.NewBackoffWithConfig(c.opts.Backoff), func(ctx context.Context) error {
		s, err := await(ctx, c.inflight, func(ctx context.Context) (stage.Session, error) {
			return c.backend.Connect(ctx, port)
		}, func(s stage.Session) {
			if s != nil {
				_ = s.Close()
			}
		})
		if err != nil {
			c.logger.Debug("connect attempt failed", "port", port, "error", err)
			return err
		}
		session = s
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, classify(err, stage.ErrConnection)
	}
	return session, nil
}

func (c *Controller) queryHomed(ctx context.Context, s stage.Session) bool {
	hr, ok := c.backend.(stage.HomedReporter)
	if !ok {
		return false
	}
	homed, err := await(ctx, c.inflight, func(ctx context.Context) (bool, error) {
		return hr.IsHomed(ctx, s)
	}, nil)
	if err != nil {
		c.logger.Warn("homed status unavailable", "error", err)
		return false
	}
	return homed
}

func (c *Controller) identify(ctx context.Context, s stage.Session) *stage.DeviceInfo {
	id, ok := c.backend.(stage.Identifier)
	if !ok {
		return nil
	}
	info, err := await(ctx, c.inflight, func(ctx context.Context) (stage.DeviceInfo, error) {
		return id.Identify(ctx, s)
	}, nil)
	if err != nil {
		c.logger.Warn("device identity unavailable", "error", err)
		return nil
	}
	return &info
}

func (c *Controller) save(port string, info *stage.DeviceInfo) {
	if c.opts.Store == nil {
		return
	}
	cfg := c.cfg
	cfg.Port = port
	if err := c.opts.Store.Save(cfg, info); err != nil {
		c.logger.Warn("config not saved", "error", err)
		return
	}
	c.logger.Info("config saved", "port", port, "device", info.String())
}

// Disconnect aborts any in-flight operation, stops sampling, halts the
// axis best-effort and releases the session. It always ends Disconnected.
func (c *Controller) Disconnect() {
	c.abort()
	_ = c.lock(context.Background())
	defer c.unlock()

	cmd := newCommand(log.OpDisconnect, log.OriginCaller)
	c.teardown()
	c.done(cmd, nil)
	c.setState(stage.StateDisconnected, "disconnect")
}

// teardown releases the session. Caller holds cmd.
func (c *Controller) teardown() {
	c.stateMu.Lock()
	sup, smp, session := c.sup, c.sampler, c.session
	c.sup, c.sampler, c.session = nil, nil, nil
	c.motion = sampler.Motion{}
	c.gen++
	c.homed = false
	c.stateMu.Unlock()

	// The supervisor goes first so a sampler blocked on a full request
	// queue is released before Stop waits for it.
	if sup != nil {
		sup.stop()
	}
	if smp != nil {
		smp.Stop()
	}
	if session == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CommandTimeout)
	defer cancel()
	if err := run(ctx, c.inflight, func(ctx context.Context) error { return c.backend.Stop(ctx, session) }); err != nil {
		c.logger.Debug("stop on release failed", "error", err)
	}
	if err := session.Close(); err != nil {
		c.logger.Warn("session close failed", "error", err)
	}
}

// abort cancels an in-flight homing run.
func (c *Controller) abort() {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.opCancel != nil {
		c.opCancel(stage.ErrAborted)
	}
}

// Home runs the homing sequence and blocks until it completes, fails, or
// HomeTimeout passes. Failure and timeout move the controller to Error. A
// Stop during homing aborts it and returns to Connected; a Stop issued while
// Home waits for the command lock aborts it before it starts.
func (c *Controller) Home(ctx context.Context) bool {
	opCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stops := c.stops.Load()
	if err := c.lock(opCtx); err != nil {
		c.fail(aborted(opCtx, err))
		return false
	}
	defer c.unlock()

	defer c.register(cancel)()
	if c.stops.Load() != stops {
		err := fmt.Errorf("%w: stop arrived before homing started", stage.ErrAborted)
		c.fail(err)
		return false
	}

	cmd := newCommand(log.OpHome, log.OriginCaller)
	err := c.home(opCtx)
	c.done(cmd, err)
	return err == nil
}

// register makes cancel the target of abort. The returned func clears it
// unless a later run has replaced it.
func (c *Controller) register(cancel context.CancelCauseFunc) func() {
	c.opMu.Lock()
	c.opID++
	id := c.opID
	c.opCancel = cancel
	c.opMu.Unlock()
	return func() {
		c.opMu.Lock()
		defer c.opMu.Unlock()
		if c.opID == id {
			c.opCancel = nil
		}
	}
}

func (c *Controller) home(ctx context.Context) error {
	c.stateMu.RLock()
	state, session, smp := c.state, c.session, c.sampler
	c.stateMu.RUnlock()

	if session == nil {
		err := fmt.Errorf("%w: home", stage.ErrNotConnected)
		c.fail(err)
		return err
	}
	switch state {
	case stage.StateConnected, stage.StateHomed, stage.StateError:
	default:
		err := fmt.Errorf("%w: home in %s", stage.ErrInvalidState, state)
		c.fail(err)
		return err
	}

	c.stateMu.Lock()
	c.homed = false
	c.gen++
	c.motion = sampler.Motion{}
	c.stateMu.Unlock()
	c.setState(stage.StateHoming, "home")

	homeCtx, cancel := context.WithTimeout(ctx, c.opts.HomeTimeout)
	defer cancel()

	err := run(homeCtx, c.inflight, func(ctx context.Context) error { return c.backend.Home(ctx, session) })
	if err != nil {
		if cause := aborted(ctx, err); errors.Is(cause, stage.ErrAborted) {
			c.fail(cause)
			c.setState(stage.StateConnected, "home aborted")
			return cause
		}
		err = classify(err, stage.ErrBackend)
		c.fault(err, "home failed")
		return err
	}

	c.stateMu.Lock()
	c.homed = true
	c.stateMu.Unlock()

	if smp != nil && !smp.Running() {
		if err := smp.Start(ctx); err != nil {
			c.fault(err, "sampler restart failed")
			return err
		}
	}
	if smp != nil {
		smp.Poke()
	}

	c.setState(stage.StateHomed, "home complete")
	return nil
}

// aborted maps a cancellation caused by Stop, Disconnect or the caller to
// stage.ErrAborted. Other errors are returned unchanged.
func aborted(ctx context.Context, err error) error {
	if ctx.Err() == nil || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return err
	}
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
		return cause
	}
	return fmt.Errorf("%w: %v", stage.ErrAborted, ctx.Err())
}

// MoveTo starts an absolute move to positionMm, clamped into the position
// limits. It returns once the move is dispatched.
func (c *Controller) MoveTo(ctx context.Context, positionMm float64) bool {
	if math.IsNaN(positionMm) || math.IsInf(positionMm, 0) {
		c.fail(fmt.Errorf("%w: position %v", stage.ErrInvalidArgument, positionMm))
		return false
	}
	if err := c.motionAllowed(); err != nil {
		c.fail(err)
		return false
	}
	if err := c.lock(ctx); err != nil {
		c.fail(err)
		return false
	}
	defer c.unlock()

	applied := safety.ClampPosition(positionMm, c.cfg.PositionLimit)
	cmd := newCommand(log.OpMoveTo, log.OriginCaller).values(positionMm, applied)
	err := c.moveTo(ctx, positionMm, applied)
	c.done(cmd, err)
	return err == nil
}

func (c *Controller) moveTo(ctx context.Context, requested, applied float64) error {
	session, err := c.motionSession()
	if err != nil {
		c.fail(err)
		return err
	}
	if safety.Clamped(requested, applied) {
		c.clamped(stage.SafetyViolation{Field: "position", Requested: requested, Applied: applied})
	}

	cmdCtx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	defer cancel()
	if err := run(cmdCtx, c.inflight, func(ctx context.Context) error {
		return c.backend.MoveAbsolute(ctx, session, applied)
	}); err != nil {
		err = classify(err, stage.ErrBackend)
		c.fail(err)
		return err
	}

	dir := safety.DirectionOf(applied - c.Position())
	c.setMotion(sampler.ModePosition, dir)
	c.setState(stage.StateMoving, "move")
	return nil
}

// SetVelocity starts open-ended motion at velocityMmS, clamped to the
// maximum velocity. Zero is a Stop. A velocity pointing past a limit the
// axis already sits on is clamped to zero.
func (c *Controller) SetVelocity(ctx context.Context, velocityMmS float64) bool {
	if math.IsNaN(velocityMmS) || math.IsInf(velocityMmS, 0) {
		c.fail(fmt.Errorf("%w: velocity %v", stage.ErrInvalidArgument, velocityMmS))
		return false
	}
	if err := c.motionAllowed(); err != nil {
		c.fail(err)
		return false
	}
	if err := c.lock(ctx); err != nil {
		c.fail(err)
		return false
	}
	defer c.unlock()

	applied := safety.ClampVelocity(velocityMmS, c.cfg.MaxVelocity)
	if applied != 0 {
		snap := c.Status()
		if snap.Known && safety.AtBoundary(snap.Position, c.cfg.PositionLimit, safety.DirectionOf(applied)) {
			applied = 0
		}
	}
	if safety.Clamped(velocityMmS, applied) {
		c.clamped(stage.SafetyViolation{Field: "velocity", Requested: velocityMmS, Applied: applied})
	}

	if applied == 0 {
		cmd := newCommand(log.OpStop, log.OriginCaller).values(velocityMmS, 0)
		err := c.stop(ctx)
		c.done(cmd, err)
		return err == nil
	}

	cmd := newCommand(log.OpSetVelocity, log.OriginCaller).values(velocityMmS, applied)
	err := c.setVelocity(ctx, applied)
	c.done(cmd, err)
	return err == nil
}

func (c *Controller) setVelocity(ctx context.Context, applied float64) error {
	session, err := c.motionSession()
	if err != nil {
		c.fail(err)
		return err
	}

	cmdCtx, cancel := context.WithTimeout(ctx, c.opts.CommandTimeout)
	defer cancel()
	if err := run(cmdCtx, c.inflight, func(ctx context.Context) error {
		return c.backend.SetVelocity(ctx, session, applied)
	}); err != nil {
		err = classify(err, stage.ErrBackend)
		c.fail(err)
		return err
	}

	c.setMotion(sampler.ModeVelocity, safety.DirectionOf(applied))
	c.setState(stage.StateMoving, "velocity")
	return nil
}

// motionAllowed is the lock-free precheck for motion commands so they fail
// fast while a long homing run holds the command lock.
func (c *Controller) motionAllowed() error {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	switch c.state {
	case stage.StateHoming:
		return fmt.Errorf("%w: homing in progress", stage.ErrInvalidState)
	case stage.StateDisconnected:
		return fmt.Errorf("%w: motion", stage.ErrNotConnected)
	}
	return nil
}

// motionSession validates the state for a motion command and returns the
// session. Caller holds cmd.
func (c *Controller) motionSession() (stage.Session, error) {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()

	if c.session == nil {
		return nil, fmt.Errorf("%w: motion", stage.ErrNotConnected)
	}
	switch c.state {
	case stage.StateConnected, stage.StateHomed, stage.StateMoving:
	default:
		return nil, fmt.Errorf("%w: motion in %s", stage.ErrInvalidState, c.state)
	}
	if c.opts.RequireHomedForMotion && !c.homed {
		return nil, fmt.Errorf("%w: axis not homed", stage.ErrInvalidState)
	}
	return c.session, nil
}

// Stop halts motion. During homing it aborts the run first. It is safe in
// every state: without a session it returns true, in Error it still sends
// the halt and stays in Error. It never leaves the controller Moving.
func (c *Controller) Stop(ctx context.Context) bool {
	c.stops.Add(1)
	c.abort()
	if err := c.lock(ctx); err != nil {
		c.fail(err)
		return false
	}
	defer c.unlock()

	cmd := newCommand(log.OpStop, log.OriginCaller)
	err := c.stop(ctx)
	c.done(cmd, err)
	return err == nil
}

// stop halts the axis. Caller holds cmd.
func (c *Controller) stop(ctx context.Context) error {
	c.stateMu.RLock()
	state, session := c.state, c.session
	c.stateMu.RUnlock()

	if session == nil {
		return nil
	}

	c.clearMotion()
	if state == stage.StateMoving {
		c.setState(stage.StateStopping, "stop")
	}

	cmdCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.CommandTimeout)
	defer cancel()
	err := classify(run(cmdCtx, c.inflight, func(ctx context.Context) error {
		return c.backend.Stop(ctx, session)
	}), stage.ErrBackend)

	if state == stage.StateError {
		if err != nil {
			c.fail(err)
		}
		return err
	}
	if err != nil {
		c.fault(err, "stop failed")
		return err
	}
	c.settle("stop")
	return nil
}
