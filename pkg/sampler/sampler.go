package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hdrlab/linstage/pkg/log"
	"github.com/hdrlab/linstage/pkg/safety"
	"github.com/hdrlab/linstage/pkg/stage"
)

// Defaults applied by New for zero Options fields.
const (
	// DefaultFailureBudget is the number of consecutive read failures
	// tolerated before the sampler reports a fault.
	DefaultFailureBudget = 5

	// DefaultOverrunLimit is the number of consecutive missed deadlines
	// after which the sampling interval is doubled.
	DefaultOverrunLimit = 3

	// DefaultMinRate is the floor for rate degradation in Hz.
	DefaultMinRate = 1.0

	// DefaultSettleGrace is the number of idle samples after a position
	// command that count as settled when the device never reported motion.
	DefaultSettleGrace = 3

	// sampleTimeoutFraction is the share of the interval a read may use.
	sampleTimeoutFraction = 0.8

	// primeTimeout bounds the priming read in Start.
	primeTimeout = time.Second
)

// ErrRunning is returned by Start when the sampler is already running.
var ErrRunning = errors.New("sampler already running")

// Options configures a Sampler.
type Options struct {
	// Rate is the target sampling rate in Hz, in (0, stage.MaxReadingRate].
	Rate float64

	// SampleTimeout bounds each periodic read. Zero, or a value above 80%
	// of the current interval, means 80% of the interval.
	SampleTimeout time.Duration

	// FailureBudget is the number of consecutive failures that trip OnFault.
	FailureBudget int

	// OverrunLimit is the number of consecutive overruns that halve the rate.
	OverrunLimit int

	// MinRate is the lowest rate degradation may reach.
	MinRate float64

	// SettleGrace is the number of idle samples after which a position
	// command is considered settled without a preceding moving sample.
	SettleGrace int

	// Limits is the travel window checked during velocity motion.
	Limits stage.Limits

	// Motion reports the controller's active command. Nil means idle.
	Motion MotionSource

	// OnBoundary is called from the loop when velocity motion has reached
	// the limit in its direction. At most once per generation.
	OnBoundary func(gen uint64, snap stage.Snapshot)

	// OnSettled is called from the loop when the motion of generation gen
	// has come to rest. At most once per generation.
	OnSettled func(gen uint64)

	// OnFault is called once from the loop when the failure budget is
	// exhausted. The loop exits after it returns.
	OnFault func(err error)

	// OnSample is called from the loop with every published snapshot.
	OnSample func(snap stage.Snapshot)

	// Logger receives operational logs. Nil discards.
	Logger *slog.Logger

	// Events receives sampler events. Nil discards.
	Events log.Logger

	// SessionID and Port tag emitted events.
	SessionID string
	Port      string
}

// Sampler polls a backend session and publishes snapshots.
type Sampler struct {
	backend stage.Backend
	session stage.Session
	opts    Options

	logger *slog.Logger
	events log.Logger

	latest   atomic.Pointer[stage.Snapshot]
	interval atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	poke chan struct{}

	// Loop-owned state.
	seq      uint64
	samples  uint64
	failures int
	overruns int

	boundaryGen uint64
	settle      settleTracker
}

type settleTracker struct {
	gen       uint64
	sawMoving bool
	idle      int
	fired     bool
}

// New creates a sampler for session. It does not start sampling.
func New(backend stage.Backend, session stage.Session, opts Options) *Sampler {
	if opts.Rate <= 0 || opts.Rate > stage.MaxReadingRate {
		opts.Rate = stage.DefaultReadingRate
	}
	if opts.FailureBudget <= 0 {
		opts.FailureBudget = DefaultFailureBudget
	}
	if opts.OverrunLimit <= 0 {
		opts.OverrunLimit = DefaultOverrunLimit
	}
	if opts.MinRate <= 0 {
		opts.MinRate = DefaultMinRate
	}
	if opts.MinRate > opts.Rate {
		opts.MinRate = opts.Rate
	}
	if opts.SettleGrace <= 0 {
		opts.SettleGrace = DefaultSettleGrace
	}
	if opts.Motion == nil {
		opts.Motion = idle
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Sampler{
		backend: backend,
		session: session,
		opts:    opts,
		logger:  logger.With("component", "sampler"),
		events:  log.OrNoop(opts.Events),
		poke:    make(chan struct{}, 1),
	}
	s.interval.Store(int64(stage.IntervalForRate(opts.Rate)))
	return s
}

// Start takes one priming sample and starts the loop.
//
// ctx bounds the priming read only; the loop runs until Stop or a fault.
// If the priming read fails the sampler is not started and the error wraps
// stage.ErrBackend.
func (s *Sampler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		select {
		case <-s.done:
		default:
			return ErrRunning
		}
	}

	if s.cancel != nil {
		s.cancel()
	}

	s.seq = 0
	s.samples = 0
	s.failures = 0
	s.overruns = 0
	s.boundaryGen = 0
	s.settle = settleTracker{}
	s.interval.Store(int64(stage.IntervalForRate(s.opts.Rate)))

	base := time.Now()
	if err := s.sample(ctx, base, primeTimeout); err != nil {
		return fmt.Errorf("%w: priming read: %v", stage.ErrBackend, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	s.logger.Info("sampler started", "rate_hz", s.opts.Rate, "port", s.opts.Port)
	s.emit(log.SamplerEvent{Kind: log.SamplerStarted, RateHz: s.opts.Rate})

	go s.run(loopCtx, base, done)
	return nil
}

// Stop cancels the loop and waits for it to exit. No snapshot is published
// after Stop returns. Calling Stop on a stopped sampler is a no-op.
func (s *Sampler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Snapshot returns the latest published snapshot, or the unknown sentinel
// if nothing has been sampled yet.
func (s *Sampler) Snapshot() stage.Snapshot {
	if p := s.latest.Load(); p != nil {
		return *p
	}
	return stage.UnknownSnapshot()
}

// Rate returns the effective sampling rate in Hz.
func (s *Sampler) Rate() float64 {
	iv := time.Duration(s.interval.Load())
	if iv <= 0 {
		return 0
	}
	return float64(time.Second) / float64(iv)
}

// Interval returns the effective sampling interval.
func (s *Sampler) Interval() time.Duration {
	return time.Duration(s.interval.Load())
}

// Poke requests an immediate out-of-band sample. Multiple pokes before the
// loop services them coalesce into one.
func (s *Sampler) Poke() {
	select {
	case s.poke <- struct{}{}:
	default:
	}
}

func (s *Sampler) run(ctx context.Context, base time.Time, done chan struct{}) {
	defer close(done)
	defer func() {
		s.logger.Info("sampler stopped", "samples", s.samples)
		s.emit(log.SamplerEvent{Kind: log.SamplerStopped, Samples: s.samples})
	}()

	next := base.Add(s.Interval())
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.poke:
			if !s.step(ctx, time.Now()) {
				return
			}
			continue
		case <-timer.C:
		}

		if !s.step(ctx, time.Now()) {
			return
		}

		next = s.schedule(next, time.Now())
		timer.Reset(time.Until(next))
	}
}

// schedule returns the deadline following prev. A sample that finished past
// its successor's deadline counts as an overrun and the grid is re-anchored
// at now, so the next sample is never taken early.
func (s *Sampler) schedule(prev, now time.Time) time.Time {
	interval := s.Interval()
	next := prev.Add(interval)
	if !now.After(next) {
		s.overruns = 0
		return next
	}

	s.overruns++
	if s.overruns >= s.opts.OverrunLimit {
		s.overruns = 0
		s.degrade()
		interval = s.Interval()
	}
	return now.Add(interval)
}

func (s *Sampler) degrade() {
	current := s.Interval()
	floor := stage.IntervalForRate(s.opts.MinRate)
	if current >= floor {
		return
	}
	next := current * 2
	if next > floor {
		next = floor
	}
	s.interval.Store(int64(next))

	rate := s.Rate()
	s.logger.Warn("sampling rate degraded", "rate_hz", rate, "target_hz", s.opts.Rate)
	s.emit(log.SamplerEvent{Kind: log.SamplerRateDegraded, RateHz: rate})
}

// step takes one sample and handles its outcome. It returns false when the
// loop must exit.
func (s *Sampler) step(ctx context.Context, at time.Time) bool {
	err := s.sample(ctx, at, s.sampleTimeout())
	if err == nil {
		s.failures = 0
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	s.failures++
	s.logger.Debug("sample failed", "error", err, "consecutive", s.failures)
	s.emit(log.SamplerEvent{Kind: log.SamplerReadFailed, Failures: s.failures})

	if s.failures < s.opts.FailureBudget {
		return true
	}

	fault := fmt.Errorf("%w: %d consecutive read failures: %v", stage.ErrBackend, s.failures, err)
	s.logger.Error("sampler fault", "error", fault)
	s.emit(log.SamplerEvent{Kind: log.SamplerFault, Failures: s.failures})
	if s.opts.OnFault != nil {
		s.opts.OnFault(fault)
	}
	return false
}

// sample reads the backend, publishes a snapshot and evaluates motion.
func (s *Sampler) sample(ctx context.Context, at time.Time, timeout time.Duration) error {
	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reading, err := s.read(readCtx)
	if err != nil {
		return err
	}

	motion := s.opts.Motion.Motion()

	s.seq++
	s.samples++
	snap := &stage.Snapshot{
		Position:  reading.Position,
		Velocity:  reading.Velocity,
		IsMoving:  reading.Moving,
		IsHomed:   motion.Homed,
		Timestamp: at,
		Seq:       s.seq,
		Known:     true,
	}
	s.latest.Store(snap)

	if s.opts.OnSample != nil {
		s.opts.OnSample(*snap)
	}

	s.evaluate(*snap, motion)
	return nil
}

// read calls ReadPosition and gives up when ctx is done, even if the
// backend ignores ctx.
func (s *Sampler) read(ctx context.Context) (stage.Reading, error) {
	type result struct {
		r   stage.Reading
		err error
	}
	ch := make(chan result, 1)
	go func() {
		r, err := s.backend.ReadPosition(ctx, s.session)
		ch <- result{r, err}
	}()
	select {
	case res := <-ch:
		return res.r, res.err
	case <-ctx.Done():
		return stage.Reading{}, ctx.Err()
	}
}

func (s *Sampler) evaluate(snap stage.Snapshot, m Motion) {
	if m.Mode == ModeIdle || m.Generation == 0 {
		return
	}

	if m.Mode == ModeVelocity &&
		s.boundaryGen != m.Generation &&
		safety.CheckBoundary(snap, s.opts.Limits, m.Direction) == safety.StopRequired {
		s.boundaryGen = m.Generation
		limit := safety.LimitFor(s.opts.Limits, m.Direction)
		s.logger.Warn("boundary reached", "position", snap.Position, "limit", limit, "seq", snap.Seq)
		s.events.Log(log.Event{
			Timestamp: time.Now(),
			SessionID: s.opts.SessionID,
			Source:    log.SourceSampler,
			Category:  log.CategoryBoundary,
			Port:      s.opts.Port,
			Boundary: &log.BoundaryEvent{
				Position:  snap.Position,
				Limit:     limit,
				Direction: int8(m.Direction),
				Seq:       snap.Seq,
			},
		})
		if s.opts.OnBoundary != nil {
			s.opts.OnBoundary(m.Generation, snap)
		}
		return
	}

	if s.settle.gen != m.Generation {
		s.settle = settleTracker{gen: m.Generation}
	}
	if s.settle.fired {
		return
	}
	if snap.IsMoving {
		s.settle.sawMoving = true
		return
	}
	s.settle.idle++

	// Velocity motion only settles when the device stopped on its own.
	if s.settle.sawMoving || (m.Mode == ModePosition && s.settle.idle >= s.opts.SettleGrace) {
		s.settle.fired = true
		if s.opts.OnSettled != nil {
			s.opts.OnSettled(m.Generation)
		}
	}
}

func (s *Sampler) sampleTimeout() time.Duration {
	limit := time.Duration(float64(s.Interval()) * sampleTimeoutFraction)
	if t := s.opts.SampleTimeout; t > 0 && t < limit {
		return t
	}
	return limit
}

func (s *Sampler) emit(ev log.SamplerEvent) {
	s.events.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.opts.SessionID,
		Source:    log.SourceSampler,
		Category:  log.CategorySampler,
		Port:      s.opts.Port,
		Sampler:   &ev,
	})
}
