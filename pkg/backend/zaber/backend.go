package zaber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/hdrlab/linstage/pkg/discovery"
	"github.com/hdrlab/linstage/pkg/stage"
)

// Unit conversion defaults.
const (
	// DefaultMicrostepSize is the travel per microstep in µm.
	DefaultMicrostepSize = 0.047625

	// DefaultVelocityScale converts µsteps/s to velocity data units.
	DefaultVelocityScale = 1.6384
)

// Timing defaults.
const (
	// DefaultHomePoll is the status poll interval while homing.
	DefaultHomePoll = 50 * time.Millisecond

	// DefaultDetectQuiet ends a device scan once no reply arrived for it.
	DefaultDetectQuiet = 150 * time.Millisecond
)

// ErrNoDevice indicates a port without an answering device.
var ErrNoDevice = errors.New("zaber: no device responded")

// knownDevices names device IDs seen in the field.
var knownDevices = map[int]string{
	50081: "X-LSM100A",
	50082: "X-LSM200A",
	50419: "X-LHM100A",
	30222: "X-MCC1",
}

// Config configures the backend.
type Config struct {
	// Baud is the serial rate. Zero means DefaultBaud.
	Baud int

	// Device is the device address on the chain. Zero means 1.
	Device int

	// Axis is the axis number on the device. Zero means 1.
	Axis int

	// MicrostepSize in µm. Zero means DefaultMicrostepSize.
	MicrostepSize float64

	// VelocityScale in data units per µstep/s. Zero means DefaultVelocityScale.
	VelocityScale float64

	HomePoll    time.Duration
	DetectQuiet time.Duration

	Logger *slog.Logger

	// Dial opens ports. Nil means Dial.
	Dial Dialer
}

func (c Config) withDefaults() Config {
	if c.Baud <= 0 {
		c.Baud = DefaultBaud
	}
	if c.Device <= 0 {
		c.Device = 1
	}
	if c.Axis <= 0 {
		c.Axis = 1
	}
	if c.MicrostepSize <= 0 {
		c.MicrostepSize = DefaultMicrostepSize
	}
	if c.VelocityScale <= 0 {
		c.VelocityScale = DefaultVelocityScale
	}
	if c.HomePoll <= 0 {
		c.HomePoll = DefaultHomePoll
	}
	if c.DetectQuiet <= 0 {
		c.DetectQuiet = DefaultDetectQuiet
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Dial == nil {
		c.Dial = Dial
	}
	return c
}

// Backend drives one axis of a Zaber device.
type Backend struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Zaber backend.
func New(cfg Config) *Backend {
	cfg = cfg.withDefaults()
	return &Backend{cfg: cfg, logger: cfg.Logger.With("component", "zaber")}
}

// Session is an open connection to the configured axis.
type Session struct {
	conn *conn
	port string

	// Velocity is derived from successive position reads.
	mu      sync.Mutex
	lastPos float64
	lastAt  time.Time
}

// Port returns the port the session was opened on.
func (s *Session) Port() string {
	return s.port
}

// Close releases the port.
func (s *Session) Close() error {
	return s.conn.Close()
}

// Connect opens port and checks that the configured device answers.
func (b *Backend) Connect(ctx context.Context, port string) (stage.Session, error) {
	c, err := b.open(ctx, port)
	if err != nil {
		return nil, err
	}
	if _, err := c.request(ctx, b.cfg.Device, 0, "get deviceid"); err != nil {
		_ = c.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: device %d: %v", stage.ErrConnection, port, b.cfg.Device, err)
	}
	b.logger.Info("session opened", "port", port, "device", b.cfg.Device, "axis", b.cfg.Axis)
	return &Session{conn: c, port: port}, nil
}

func (b *Backend) open(ctx context.Context, port string) (*conn, error) {
	p, idleEOF, err := b.cfg.Dial(ctx, port, b.cfg.Baud)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", stage.ErrConnection, err)
	}
	return newConn(p, idleEOF, b.logger.With("port", port)), nil
}

// Home starts the homing sequence and polls until the axis is idle.
func (b *Backend) Home(ctx context.Context, s stage.Session) error {
	sess, err := b.session(s)
	if err != nil {
		return err
	}
	if _, err := b.axis(ctx, sess, "home"); err != nil {
		return err
	}

	t := time.NewTicker(b.cfg.HomePoll)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
		r, err := b.axis(ctx, sess, "")
		if err != nil {
			return err
		}
		if !r.Busy() {
			if !r.Homed() {
				return fmt.Errorf("%w: homing ended without reference", stage.ErrBackend)
			}
			return nil
		}
	}
}

// MoveAbsolute starts a move to positionMm.
func (b *Backend) MoveAbsolute(ctx context.Context, s stage.Session, positionMm float64) error {
	sess, err := b.session(s)
	if err != nil {
		return err
	}
	_, err = b.axis(ctx, sess, "move abs "+strconv.FormatInt(b.microsteps(positionMm), 10))
	return err
}

// SetVelocity starts continuous motion at velocityMmS.
func (b *Backend) SetVelocity(ctx context.Context, s stage.Session, velocityMmS float64) error {
	sess, err := b.session(s)
	if err != nil {
		return err
	}
	_, err = b.axis(ctx, sess, "move vel "+strconv.FormatInt(b.velocityData(velocityMmS), 10))
	return err
}

// Stop decelerates the axis to a halt.
func (b *Backend) Stop(ctx context.Context, s stage.Session) error {
	sess, err := b.session(s)
	if err != nil {
		return err
	}
	_, err = b.axis(ctx, sess, "stop")
	return err
}

// ReadPosition reads the axis position and busy status.
func (b *Backend) ReadPosition(ctx context.Context, s stage.Session) (stage.Reading, error) {
	sess, err := b.session(s)
	if err != nil {
		return stage.Reading{}, err
	}
	r, err := b.axis(ctx, sess, "get pos")
	if err != nil {
		return stage.Reading{}, err
	}
	steps, err := r.Int()
	if err != nil {
		return stage.Reading{}, err
	}

	now := time.Now()
	pos := b.millimetres(steps)

	sess.mu.Lock()
	var vel float64
	if r.Busy() && !sess.lastAt.IsZero() {
		if dt := now.Sub(sess.lastAt).Seconds(); dt > 0 {
			vel = (pos - sess.lastPos) / dt
		}
	}
	sess.lastPos, sess.lastAt = pos, now
	sess.mu.Unlock()

	return stage.Reading{Position: pos, Velocity: vel, Moving: r.Busy()}, nil
}

// IsHomed reports whether the axis has a reference position.
func (b *Backend) IsHomed(ctx context.Context, s stage.Session) (bool, error) {
	sess, err := b.session(s)
	if err != nil {
		return false, err
	}
	r, err := b.axis(ctx, sess, "")
	if err != nil {
		return false, err
	}
	return r.Homed(), nil
}

// Identify reads the device identity.
func (b *Backend) Identify(ctx context.Context, s stage.Session) (stage.DeviceInfo, error) {
	sess, err := b.session(s)
	if err != nil {
		return stage.DeviceInfo{}, err
	}
	info, err := b.identify(ctx, sess.conn, b.cfg.Device)
	if err != nil {
		return stage.DeviceInfo{}, err
	}
	info.Port = sess.port
	return info, nil
}

// Probe opens port, lists every device on the chain and closes it again.
func (b *Backend) Probe(ctx context.Context, port string) ([]stage.DeviceInfo, error) {
	c, err := b.open(ctx, port)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	replies, err := c.broadcast(ctx, "get deviceid", b.cfg.DetectQuiet)
	if err != nil && len(replies) == 0 {
		return nil, err
	}
	if len(replies) == 0 {
		return nil, fmt.Errorf("%w on %s", ErrNoDevice, port)
	}

	devices := make([]stage.DeviceInfo, 0, len(replies))
	for _, r := range replies {
		info, err := b.identify(ctx, c, r.Device)
		if err != nil {
			b.logger.Debug("identify failed", "port", port, "device", r.Device, "error", err)
			continue
		}
		info.Port = port
		devices = append(devices, info)
	}
	return devices, nil
}

func (b *Backend) identify(ctx context.Context, c *conn, device int) (stage.DeviceInfo, error) {
	get := func(setting string) (Reply, error) {
		r, err := c.request(ctx, device, 0, "get "+setting)
		if err != nil {
			return r, b.classify(err)
		}
		return r, nil
	}

	r, err := get("deviceid")
	if err != nil {
		return stage.DeviceInfo{}, err
	}
	id, err := r.Int()
	if err != nil {
		return stage.DeviceInfo{}, err
	}

	info := stage.DeviceInfo{DeviceID: int(id), AxisCount: 1}
	info.Name = knownDevices[info.DeviceID]
	if info.Name == "" {
		info.Name = fmt.Sprintf("Zaber device %d", info.DeviceID)
	}

	if r, err := get("system.serial"); err == nil {
		info.SerialNumber = r.Data
	}
	if r, err := get("version"); err == nil {
		info.FirmwareVersion = r.Data
	}
	if r, err := get("system.axiscount"); err == nil {
		if n, err := r.Int(); err == nil {
			info.AxisCount = int(n)
		}
	}
	info.DeviceType = "integrated"
	if info.AxisCount > 1 {
		info.DeviceType = "controller"
	}
	return info, nil
}

// axis sends data to the configured axis.
func (b *Backend) axis(ctx context.Context, s *Session, data string) (Reply, error) {
	r, err := s.conn.request(ctx, b.cfg.Device, b.cfg.Axis, data)
	if err != nil {
		return r, b.classify(err)
	}
	return r, nil
}

// classify maps protocol errors to the stage taxonomy. Context errors pass
// through unchanged.
func (b *Backend) classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, stage.ErrBackend):
		return err
	default:
		return fmt.Errorf("%w: %w", stage.ErrBackend, err)
	}
}

func (b *Backend) session(s stage.Session) (*Session, error) {
	sess, ok := s.(*Session)
	if !ok || sess == nil {
		return nil, fmt.Errorf("%w: zaber: foreign session", stage.ErrBackend)
	}
	return sess, nil
}

func (b *Backend) microsteps(mm float64) int64 {
	return int64(math.Round(mm * 1000 / b.cfg.MicrostepSize))
}

func (b *Backend) millimetres(steps int64) float64 {
	return float64(steps) * b.cfg.MicrostepSize / 1000
}

func (b *Backend) velocityData(mmS float64) int64 {
	return int64(math.Round(mmS * 1000 / b.cfg.MicrostepSize * b.cfg.VelocityScale))
}

var (
	_ stage.Backend       = (*Backend)(nil)
	_ stage.HomedReporter = (*Backend)(nil)
	_ stage.Identifier    = (*Backend)(nil)
	_ discovery.Prober    = (*Backend)(nil)
)
