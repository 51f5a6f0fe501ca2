package stage

import (
	"fmt"
	"math"
	"time"
)

// PortAuto requests port selection through discovery at connect time.
const PortAuto = "auto"

// Default configuration values.
const (
	// DefaultMaxVelocity is the default velocity clamp in mm/s.
	DefaultMaxVelocity = 10.0

	// DefaultReadingRate is the default sampling rate in Hz.
	DefaultReadingRate = 100.0

	// MaxReadingRate is the highest accepted sampling rate in Hz.
	MaxReadingRate = 100.0
)

// Limits is a closed position range in millimetres.
type Limits struct {
	Min float64
	Max float64
}

// DefaultLimits returns the default travel window of 0-100 mm.
func DefaultLimits() Limits {
	return Limits{Min: 0, Max: 100}
}

// Contains reports whether pos lies within [Min, Max].
func (l Limits) Contains(pos float64) bool {
	return pos >= l.Min && pos <= l.Max
}

// Span returns Max - Min.
func (l Limits) Span() float64 {
	return l.Max - l.Min
}

// Validate checks that the range is finite and non-empty.
func (l Limits) Validate() error {
	if !finite(l.Min) || !finite(l.Max) {
		return fmt.Errorf("%w: position limits must be finite, got (%v, %v)", ErrConfig, l.Min, l.Max)
	}
	if l.Min >= l.Max {
		return fmt.Errorf("%w: position limit min %v must be below max %v", ErrConfig, l.Min, l.Max)
	}
	return nil
}

// Config is the stage configuration. It is a comparable value and is never
// modified after NewConfig returns it.
type Config struct {
	// Port is the device port (e.g. "COM3", "/dev/ttyUSB0", "tcp://10.0.0.5:55550")
	// or PortAuto.
	Port string

	// PositionLimit is the software travel window.
	PositionLimit Limits

	// MaxVelocity is the velocity magnitude clamp in mm/s.
	MaxVelocity float64

	// ReadingRateHz is the target sampling rate, in (0, MaxReadingRate].
	ReadingRateHz float64
}

// NewConfig builds and validates a Config.
func NewConfig(port string, limits Limits, maxVelocity, readingRateHz float64) (Config, error) {
	cfg := Config{
		Port:          port,
		PositionLimit: limits,
		MaxVelocity:   maxVelocity,
		ReadingRateHz: readingRateHz,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig returns an auto-port configuration with default limits.
func DefaultConfig() Config {
	return Config{
		Port:          PortAuto,
		PositionLimit: DefaultLimits(),
		MaxVelocity:   DefaultMaxVelocity,
		ReadingRateHz: DefaultReadingRate,
	}
}

// Validate reports the first invalid field, wrapped in ErrConfig.
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("%w: port must not be empty", ErrConfig)
	}
	if err := c.PositionLimit.Validate(); err != nil {
		return err
	}
	if !finite(c.MaxVelocity) || c.MaxVelocity <= 0 {
		return fmt.Errorf("%w: max velocity must be positive, got %v", ErrConfig, c.MaxVelocity)
	}
	if !finite(c.ReadingRateHz) || c.ReadingRateHz <= 0 || c.ReadingRateHz > MaxReadingRate {
		return fmt.Errorf("%w: reading rate must be in (0, %v] Hz, got %v", ErrConfig, MaxReadingRate, c.ReadingRateHz)
	}
	return nil
}

// IsAutoPort reports whether the port must be resolved through discovery.
func (c Config) IsAutoPort() bool {
	return c.Port == PortAuto
}

// SampleInterval returns the target time between samples.
func (c Config) SampleInterval() time.Duration {
	return IntervalForRate(c.ReadingRateHz)
}

// IntervalForRate converts a rate in Hz to a sampling interval.
func IntervalForRate(hz float64) time.Duration {
	if hz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / hz)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
