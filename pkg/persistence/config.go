package persistence

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/hdrlab/linstage/pkg/stage"
)

// DefaultConfigFile is the conventional configuration file name.
const DefaultConfigFile = "zaber_config.json"

// ErrNoConfig indicates the configuration file does not exist.
var ErrNoConfig = errors.New("persistence: no saved configuration")

// ConfigFile is the on-disk configuration.
type ConfigFile struct {
	Port              string            `json:"port" yaml:"port"`
	PositionLimitsMm  [2]float64        `json:"position_limits_mm" yaml:"position_limits_mm,flow"`
	MaxVelocityMmS    float64           `json:"max_velocity_mm_s" yaml:"max_velocity_mm_s"`
	ReadingRateHz     float64           `json:"reading_rate_hz" yaml:"reading_rate_hz"`
	DeviceInfo        *stage.DeviceInfo `json:"device_info" yaml:"device_info"`
	Timestamp         float64           `json:"timestamp" yaml:"timestamp"`
	TimestampReadable string            `json:"timestamp_readable" yaml:"timestamp_readable"`
}

// NewConfigFile builds the file contents for cfg saved at t.
func NewConfigFile(cfg stage.Config, info *stage.DeviceInfo, t time.Time) *ConfigFile {
	return &ConfigFile{
		Port:              cfg.Port,
		PositionLimitsMm:  [2]float64{cfg.PositionLimit.Min, cfg.PositionLimit.Max},
		MaxVelocityMmS:    cfg.MaxVelocity,
		ReadingRateHz:     cfg.ReadingRateHz,
		DeviceInfo:        info,
		Timestamp:         unixSeconds(t),
		TimestampReadable: t.Format(readableLayout),
	}
}

// Config validates and returns the stage configuration.
func (f *ConfigFile) Config() (stage.Config, error) {
	return stage.NewConfig(
		f.Port,
		stage.Limits{Min: f.PositionLimitsMm[0], Max: f.PositionLimitsMm[1]},
		f.MaxVelocityMmS,
		f.ReadingRateHz,
	)
}

// SavedAt returns the save time, or zero if unknown.
func (f *ConfigFile) SavedAt() time.Time {
	return fromUnixSeconds(f.Timestamp)
}

func defaultConfigFile() *ConfigFile {
	d := stage.DefaultConfig()
	return &ConfigFile{
		Port:             d.Port,
		PositionLimitsMm: [2]float64{d.PositionLimit.Min, d.PositionLimit.Max},
		MaxVelocityMmS:   d.MaxVelocity,
		ReadingRateHz:    d.ReadingRateHz,
	}
}

// ConfigStore persists the stage configuration and device identity to a
// file. It is safe for concurrent use.
type ConfigStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewConfigStore creates a store for path.
func NewConfigStore(path string) *ConfigStore {
	return &ConfigStore{path: path, now: time.Now}
}

// Path returns the file path.
func (s *ConfigStore) Path() string {
	return s.path
}

// Save writes cfg and info.
func (s *ConfigStore) Save(cfg stage.Config, info *stage.DeviceInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := writeFile(s.path, NewConfigFile(cfg, info, s.now())); err != nil {
		return fmt.Errorf("persistence: save %s: %w", s.path, err)
	}
	return nil
}

// Load reads and validates the configuration. A missing file returns an
// error wrapping ErrNoConfig; invalid values wrap stage.ErrConfig.
func (s *ConfigStore) Load() (stage.Config, *stage.DeviceInfo, error) {
	f, err := s.LoadFile()
	if err != nil {
		return stage.Config{}, nil, err
	}
	cfg, err := f.Config()
	if err != nil {
		return stage.Config{}, nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return cfg, f.DeviceInfo, nil
}

// LoadFile reads the raw file contents, filling absent fields with defaults.
func (s *ConfigStore) LoadFile() (*ConfigFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNoConfig, s.path)
	}
	if err != nil {
		return nil, err
	}

	f := defaultConfigFile()
	if err := unmarshal(s.path, data, f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", stage.ErrConfig, s.path, err)
	}
	return f, nil
}

// Clear removes the file.
func (s *ConfigStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
