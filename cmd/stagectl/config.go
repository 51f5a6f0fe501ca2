package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hdrlab/linstage/pkg/backend/sim"
	"github.com/hdrlab/linstage/pkg/stage"
)

// Config holds the stagectl configuration. Environment variables set the
// defaults; flags override them.
type Config struct {
	Port        string  `env:"LINSTAGE_PORT" envDefault:"auto"`
	MinMm       float64 `env:"LINSTAGE_MIN_MM" envDefault:"0"`
	MaxMm       float64 `env:"LINSTAGE_MAX_MM" envDefault:"100"`
	MaxVelocity float64 `env:"LINSTAGE_MAX_VELOCITY" envDefault:"10"`
	RateHz      float64 `env:"LINSTAGE_RATE_HZ" envDefault:"100"`
	Baud        int     `env:"LINSTAGE_BAUD" envDefault:"115200"`

	ConfigFile  string `env:"LINSTAGE_CONFIG"`
	DevicesFile string `env:"LINSTAGE_DEVICES" envDefault:"discovered_devices.json"`
	EventLog    string `env:"LINSTAGE_EVENT_LOG"`
	Record      string `env:"LINSTAGE_RECORD"`
	LogLevel    string `env:"LINSTAGE_LOG_LEVEL" envDefault:"info"`

	MDNS          bool          `env:"LINSTAGE_MDNS" envDefault:"true"`
	MDNSInterface string        `env:"LINSTAGE_MDNS_IFACE"`
	ScanTimeout   time.Duration `env:"LINSTAGE_SCAN_TIMEOUT" envDefault:"5s"`

	RequireHomed bool `env:"LINSTAGE_REQUIRE_HOMED"`
	Simulate     bool `env:"LINSTAGE_SIMULATE"`

	Scan        bool
	Home        bool
	Interactive bool
	Dashboard   bool
	Reset       bool
}

// parseConfig reads environ, then args.
func parseConfig(args []string, environ []string, output io.Writer) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: env.ToMap(environ)}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("stagectl", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&cfg.Port, "port", cfg.Port, `Device port (COM3, /dev/ttyUSB0, tcp://host:55550, sim://0) or "auto"`)
	fs.Float64Var(&cfg.MinMm, "min", cfg.MinMm, "Lower position limit in mm")
	fs.Float64Var(&cfg.MaxMm, "max", cfg.MaxMm, "Upper position limit in mm")
	fs.Float64Var(&cfg.MaxVelocity, "max-velocity", cfg.MaxVelocity, "Velocity clamp in mm/s")
	fs.Float64Var(&cfg.RateHz, "rate", cfg.RateHz, "Sampling rate in Hz (max 100)")
	fs.IntVar(&cfg.Baud, "baud", cfg.Baud, "Serial baud rate")
	fs.StringVar(&cfg.ConfigFile, "config", cfg.ConfigFile, "Configuration file (.json, .yaml); loaded if present, saved on connect")
	fs.StringVar(&cfg.DevicesFile, "devices", cfg.DevicesFile, "Discovered devices file")
	fs.StringVar(&cfg.EventLog, "event-log", cfg.EventLog, "Append stage events to this .stlog file")
	fs.StringVar(&cfg.Record, "record", cfg.Record, "Record snapshots to this SQLite database")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.BoolVar(&cfg.MDNS, "mdns", cfg.MDNS, "Browse mDNS for networked controllers during discovery")
	fs.StringVar(&cfg.MDNSInterface, "mdns-iface", cfg.MDNSInterface, "Restrict mDNS to this interface")
	fs.DurationVar(&cfg.ScanTimeout, "scan-timeout", cfg.ScanTimeout, "Device scan timeout")
	fs.BoolVar(&cfg.RequireHomed, "require-homed", cfg.RequireHomed, "Reject motion until the axis is homed")
	fs.BoolVar(&cfg.Simulate, "simulate", cfg.Simulate, "Use the simulated stage")
	fs.BoolVar(&cfg.Scan, "scan", false, "Scan for devices, save the list and exit")
	fs.BoolVar(&cfg.Home, "home", false, "Home the axis after connecting")
	fs.BoolVar(&cfg.Interactive, "interactive", false, "Enable interactive command mode")
	fs.BoolVar(&cfg.Dashboard, "dashboard", false, "Run the jog dashboard")
	fs.BoolVar(&cfg.Reset, "reset", false, "Clear the configuration file before starting")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Interactive && cfg.Dashboard {
		return nil, fmt.Errorf("-interactive and -dashboard are mutually exclusive")
	}
	return cfg, nil
}

// StageConfig validates the stage settings.
func (c *Config) StageConfig() (stage.Config, error) {
	port := c.Port
	if c.Simulate && port == stage.PortAuto {
		port = sim.DefaultPort
	}
	return stage.NewConfig(port, stage.Limits{Min: c.MinMm, Max: c.MaxMm}, c.MaxVelocity, c.RateHz)
}

// parseLevel maps a level name to a slog level.
func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s (use: debug, info, warn, error)", s)
	}
}
