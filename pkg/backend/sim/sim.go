// Package sim provides a simulated stage backend.
//
// The simulator integrates linear kinematics against the wall clock: a move
// travels towards its target at MoveSpeed, and velocity motion advances at the
// commanded rate until Stop or the end of hardware travel. Latency and failures
// can be injected per operation for testing supervisory behavior.
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/hdrlab/linstage/pkg/stage"
)

// PortPrefix marks ports served by the simulator.
const PortPrefix = "sim://"

// DefaultPort is the port reported by Discover.
const DefaultPort = PortPrefix + "0"

// ErrClosed is returned for calls on a closed session.
var ErrClosed = errors.New("sim: session closed")

// Config configures a simulated stage.
type Config struct {
	// Start is the initial position in mm.
	Start float64

	// Travel is the hardware travel range. Motion stops at its ends.
	// Zero value means -5..205 mm.
	Travel stage.Limits

	// MoveSpeed is the speed of absolute moves in mm/s. Zero means 20.
	MoveSpeed float64

	// Homed reports an existing homing reference at connect.
	Homed bool

	// HomeDuration is how long homing takes.
	HomeDuration time.Duration

	// ConnectDelay delays Connect. Honors the context.
	ConnectDelay time.Duration

	// Latency delays every other call. Honors the context.
	Latency time.Duration

	// Info is returned by Identify. Port is filled in at connect.
	Info stage.DeviceInfo
}

// Op names a backend call for the call log.
type Op string

// Backend operations.
const (
	OpConnect  Op = "connect"
	OpHome     Op = "home"
	OpMove     Op = "move_abs"
	OpVelocity Op = "move_vel"
	OpStop     Op = "stop"
	OpRead     Op = "read"
)

// Call is one recorded command.
type Call struct {
	Op    Op
	Value float64

	// Position is the simulated position when the call was accepted.
	Position float64
	At       time.Time
}

// Backend is a simulated stage. It is safe for concurrent use.
type Backend struct {
	mu  sync.Mutex
	cfg Config

	// Kinematic state: position pos at time t0, moving at vel, or
	// towards target when hasTarget is set.
	pos       float64
	t0        time.Time
	vel       float64
	target    float64
	hasTarget bool

	homed bool

	calls []Call
	reads int

	failures map[Op]error
	delays   map[Op]time.Duration
}

// New creates a simulated stage.
func New(cfg Config) *Backend {
	if cfg.Travel == (stage.Limits{}) {
		cfg.Travel = stage.Limits{Min: -5, Max: 205}
	}
	if cfg.MoveSpeed <= 0 {
		cfg.MoveSpeed = 20
	}
	if cfg.Info.Name == "" {
		cfg.Info = stage.DeviceInfo{
			DeviceID:        50081,
			SerialNumber:    "SIM-0001",
			Name:            "Simulated LSM100",
			FirmwareVersion: "7.38",
			DeviceType:      "linear stage",
			AxisCount:       1,
		}
	}
	return &Backend{
		cfg:      cfg,
		pos:      cfg.Start,
		homed:    cfg.Homed,
		t0:       time.Now(),
		failures: make(map[Op]error),
		delays:   make(map[Op]time.Duration),
	}
}

// Session is an open simulator session.
type Session struct {
	b      *Backend
	port   string
	mu     sync.Mutex
	closed bool
}

// Port returns the port the session was opened on.
func (s *Session) Port() string {
	return s.port
}

// Close releases the session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Fail makes every subsequent call of op return err. A nil err clears it.
func (b *Backend) Fail(op Op, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		delete(b.failures, op)
		return
	}
	b.failures[op] = err
}

// Delay adds d to every subsequent call of op.
func (b *Backend) Delay(op Op, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delays[op] = d
}

// Calls returns the recorded commands, excluding reads.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CallsOf returns the recorded commands of kind op.
func (b *Backend) CallsOf(op Op) []Call {
	var out []Call
	for _, c := range b.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Reads returns the number of ReadPosition calls.
func (b *Backend) Reads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads
}

// Position returns the simulated position now.
func (b *Backend) Position() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, _ := b.advance(time.Now())
	return p
}

// Connect opens a session. Ports other than sim:// ports fail with
// stage.ErrConnection.
func (b *Backend) Connect(ctx context.Context, port string) (stage.Session, error) {
	if err := b.enter(ctx, OpConnect, b.cfg.ConnectDelay, 0); err != nil {
		return nil, err
	}
	if len(port) < len(PortPrefix) || port[:len(PortPrefix)] != PortPrefix {
		return nil, fmt.Errorf("%w: sim: unsupported port %q", stage.ErrConnection, port)
	}
	return &Session{b: b, port: port}, nil
}

// Home drives to the reference position after HomeDuration.
func (b *Backend) Home(ctx context.Context, s stage.Session) error {
	if err := b.check(s); err != nil {
		return err
	}
	if err := b.enter(ctx, OpHome, b.cfg.HomeDuration, 0); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pos = 0
	b.t0 = time.Now()
	b.vel = 0
	b.hasTarget = false
	b.homed = true
	return nil
}

// MoveAbsolute starts a move to positionMm.
func (b *Backend) MoveAbsolute(ctx context.Context, s stage.Session, positionMm float64) error {
	if err := b.check(s); err != nil {
		return err
	}
	if err := b.enter(ctx, OpMove, b.cfg.Latency, positionMm); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebase()
	b.vel = 0
	b.target = math.Max(b.cfg.Travel.Min, math.Min(b.cfg.Travel.Max, positionMm))
	b.hasTarget = true
	return nil
}

// SetVelocity starts continuous motion at velocityMmS.
func (b *Backend) SetVelocity(ctx context.Context, s stage.Session, velocityMmS float64) error {
	if err := b.check(s); err != nil {
		return err
	}
	if err := b.enter(ctx, OpVelocity, b.cfg.Latency, velocityMmS); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebase()
	b.hasTarget = false
	b.vel = velocityMmS
	return nil
}

// Stop halts motion at the current position.
func (b *Backend) Stop(ctx context.Context, s stage.Session) error {
	if err := b.check(s); err != nil {
		return err
	}
	if err := b.enter(ctx, OpStop, b.cfg.Latency, 0); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.rebase()
	b.vel = 0
	b.hasTarget = false
	return nil
}

// ReadPosition samples the simulated axis.
func (b *Backend) ReadPosition(ctx context.Context, s stage.Session) (stage.Reading, error) {
	if err := b.check(s); err != nil {
		return stage.Reading{}, err
	}

	b.mu.Lock()
	b.reads++
	delay := b.cfg.Latency + b.delays[OpRead]
	failure := b.failures[OpRead]
	b.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return stage.Reading{}, err
	}
	if failure != nil {
		return stage.Reading{}, failure
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	pos, vel := b.advance(time.Now())
	return stage.Reading{Position: pos, Velocity: vel, Moving: vel != 0}, nil
}

// IsHomed reports whether the simulated axis holds a reference.
func (b *Backend) IsHomed(_ context.Context, s stage.Session) (bool, error) {
	if err := b.check(s); err != nil {
		return false, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.homed, nil
}

// Identify returns the configured device identity.
func (b *Backend) Identify(_ context.Context, s stage.Session) (stage.DeviceInfo, error) {
	if err := b.check(s); err != nil {
		return stage.DeviceInfo{}, err
	}
	info := b.cfg.Info
	info.Port = s.(*Session).port
	return info, nil
}

// Discover reports the simulator as a single device on DefaultPort.
func (b *Backend) Discover(context.Context) ([]stage.DeviceInfo, error) {
	info := b.cfg.Info
	info.Port = DefaultPort
	return []stage.DeviceInfo{info}, nil
}

// enter applies injected delay and failure for op and records the call.
func (b *Backend) enter(ctx context.Context, op Op, base time.Duration, value float64) error {
	b.mu.Lock()
	delay := base + b.delays[op]
	failure := b.failures[op]
	b.mu.Unlock()

	if err := sleep(ctx, delay); err != nil {
		return err
	}
	if failure != nil {
		return failure
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	pos, _ := b.advance(now)
	b.calls = append(b.calls, Call{Op: op, Value: value, Position: pos, At: now})
	return nil
}

func (b *Backend) check(s stage.Session) error {
	sess, ok := s.(*Session)
	if !ok || sess.b != b {
		return fmt.Errorf("%w: sim: foreign session", stage.ErrBackend)
	}
	if sess.Closed() {
		return ErrClosed
	}
	return nil
}

// rebase folds elapsed motion into pos. Caller holds mu.
func (b *Backend) rebase() {
	now := time.Now()
	b.pos, _ = b.advance(now)
	b.t0 = now
	if b.hasTarget && b.pos == b.target {
		b.hasTarget = false
	}
}

// advance returns position and velocity at now without mutating state.
// Caller holds mu.
func (b *Backend) advance(now time.Time) (float64, float64) {
	dt := now.Sub(b.t0).Seconds()
	if dt < 0 {
		dt = 0
	}

	if b.hasTarget {
		dist := b.target - b.pos
		step := b.cfg.MoveSpeed * dt
		if math.Abs(dist) <= step {
			return b.target, 0
		}
		return b.pos + math.Copysign(step, dist), math.Copysign(b.cfg.MoveSpeed, dist)
	}

	if b.vel == 0 {
		return b.pos, 0
	}
	p := b.pos + b.vel*dt
	switch {
	case p >= b.cfg.Travel.Max:
		return b.cfg.Travel.Max, 0
	case p <= b.cfg.Travel.Min:
		return b.cfg.Travel.Min, 0
	}
	return p, b.vel
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var (
	_ stage.Backend       = (*Backend)(nil)
	_ stage.HomedReporter = (*Backend)(nil)
	_ stage.Identifier    = (*Backend)(nil)
	_ stage.Discoverer    = (*Backend)(nil)
)
