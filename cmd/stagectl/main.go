// Command stagectl supervises a single-axis linear stage.
//
// It connects to a Zaber stage over serial or TCP (or a simulated stage),
// keeps a live position snapshot, enforces the configured travel and
// velocity limits, and offers an interactive shell or a jog dashboard.
//
// Usage:
//
//	stagectl [flags]
//
// Flags:
//
//	-port string          Device port or "auto" (default "auto")
//	-min, -max float      Position limits in mm (default 0, 100)
//	-max-velocity float   Velocity clamp in mm/s (default 10)
//	-rate float           Sampling rate in Hz (default 100)
//	-config string        Configuration file, loaded if present and saved on connect
//	-devices string       Discovered devices file (default "discovered_devices.json")
//	-scan                 Scan for devices, save the list and exit
//	-simulate             Use the simulated stage
//	-home                 Home after connecting
//	-interactive          Enable interactive command mode
//	-dashboard            Run the jog dashboard
//	-event-log string     Append stage events to a .stlog file
//	-record string        Record snapshots to a SQLite database
//	-log-level string     Log level: debug, info, warn, error (default "info")
//
// Every flag with a default can also be set through the environment
// (LINSTAGE_PORT, LINSTAGE_MAX_VELOCITY, LINSTAGE_RECORD, ...).
//
// Examples:
//
//	# Scan serial ports and the network, then save the device list
//	stagectl -scan
//
//	# Connect to the first saved device and open the shell
//	stagectl -interactive
//
//	# Jog a simulated stage
//	stagectl -simulate -dashboard
//
//	# Remember the stage and record a session
//	stagectl -port /dev/ttyUSB0 -config stage.yaml -record run.db -home
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hdrlab/linstage/cmd/stagectl/dashboard"
	"github.com/hdrlab/linstage/cmd/stagectl/interactive"
	"github.com/hdrlab/linstage/pkg/backend/sim"
	"github.com/hdrlab/linstage/pkg/backend/zaber"
	"github.com/hdrlab/linstage/pkg/controller"
	"github.com/hdrlab/linstage/pkg/log"
	"github.com/hdrlab/linstage/pkg/persistence"
	"github.com/hdrlab/linstage/pkg/recorder"
	"github.com/hdrlab/linstage/pkg/stage"
)

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Environ(), os.Stderr)
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "stagectl: %v\n", err)
		}
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "stagectl: %v\n", err)
		os.Exit(1)
	}
}

// logSwitch lets the interactive shell take over log output after startup.
type logSwitch struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *logSwitch) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *logSwitch) set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

func run(ctx context.Context, cfg *Config) error {
	level, err := parseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logOut := &logSwitch{w: os.Stderr}
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	zb := zaber.New(zaber.Config{Baud: cfg.Baud, Logger: logger})

	if cfg.Scan {
		hw, stop := hardwareDiscovery(cfg, zb, logger)
		defer stop()
		return runScan(ctx, cfg, hw, os.Stdout)
	}

	// Event sinks
	sinks := []log.Logger{log.NewSlogAdapter(logger.With("component", "events"))}
	if cfg.EventLog != "" {
		fl, err := log.NewFileLogger(cfg.EventLog)
		if err != nil {
			return fmt.Errorf("event log: %w", err)
		}
		defer func() {
			logger.Info("event log closed", "path", fl.Path(), "events", fl.Written(), "dropped", fl.Dropped())
			_ = fl.Close()
		}()
		sinks = append(sinks, fl)
		logger.Info("event log", "path", cfg.EventLog)
	}

	opts := controller.Options{
		Logger:                logger,
		RequireHomedForMotion: cfg.RequireHomed,
	}

	if cfg.Record != "" {
		rec, err := recorder.Open(cfg.Record, recorder.Options{Logger: logger})
		if err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logger.Warn("close recorder", "error", err)
			}
			if n := rec.Dropped(); n > 0 {
				logger.Warn("recorder dropped samples", "count", n)
			}
		}()
		sinks = append(sinks, rec)
		opts.OnSample = rec.Record
		logger.Info("recording snapshots", "path", cfg.Record)
	}
	opts.Events = log.NewMultiLogger(sinks...)

	var backend stage.Backend = zb
	if cfg.Simulate {
		s := sim.New(sim.Config{HomeDuration: 500 * time.Millisecond})
		backend = s
		opts.Discovery = s
	} else {
		d, stop := autoDiscovery(cfg, zb, logger)
		defer stop()
		opts.Discovery = d
	}

	c, err := openController(ctx, cfg, backend, opts, logger)
	if err != nil {
		return err
	}
	defer c.Disconnect()

	info, _ := c.DeviceInfo()
	logger.Info("stage ready", "port", c.Port(), "device", info.String(), "state", c.State())

	if cfg.Home {
		if !c.Home(ctx) {
			return fmt.Errorf("home: %w", c.LastError())
		}
	}

	switch {
	case cfg.Dashboard:
		// The dashboard owns the terminal.
		logOut.set(io.Discard)
		p := tea.NewProgram(dashboard.New(ctx, c), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			return fmt.Errorf("dashboard: %w", err)
		}

	case cfg.Interactive:
		shell, err := interactive.New(c)
		if err != nil {
			return err
		}
		logOut.set(shell.Stderr())
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		shell.Run(ctx, cancel)

	default:
		monitor(ctx, c, os.Stdout)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), controller.DefaultCommandTimeout)
	defer cancel()
	if !c.Stop(stopCtx) {
		logger.Warn("final stop failed", "error", c.LastError())
	}
	return nil
}

// openController connects using the configuration file when one exists,
// otherwise the flag settings.
func openController(ctx context.Context, cfg *Config, backend stage.Backend, opts controller.Options, logger *slog.Logger) (*controller.Controller, error) {
	if cfg.ConfigFile == "" {
		sc, err := cfg.StageConfig()
		if err != nil {
			return nil, err
		}
		return controller.Open(ctx, backend, sc, opts)
	}

	store := persistence.NewConfigStore(cfg.ConfigFile)
	if cfg.Reset {
		if err := store.Clear(); err != nil {
			logger.Warn("clear config", "error", err)
		}
	}
	opts.Store = store

	c, err := controller.FromStore(ctx, backend, store, opts)
	if !errors.Is(err, persistence.ErrNoConfig) {
		return c, err
	}

	logger.Info("no saved configuration, using flags", "path", cfg.ConfigFile)
	sc, err := cfg.StageConfig()
	if err != nil {
		return nil, err
	}
	c, err = controller.Open(ctx, backend, sc, opts)
	if err != nil {
		return nil, err
	}
	if _, known := c.DeviceInfo(); !known {
		// No identity to trigger a save; store the flags anyway.
		if err := store.Save(sc, nil); err != nil {
			logger.Warn("save config", "error", err)
		}
	}
	return c, nil
}

// monitor prints the stage status once per second until ctx is done.
func monitor(ctx context.Context, c *controller.Controller, out io.Writer) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := c.Status()
			fmt.Fprintf(out, "%s  pos=%.4f mm  vel=%.4f mm/s  homed=%t  rate=%.0f Hz\n",
				c.State(), snap.Position, snap.Velocity, snap.IsHomed, c.SampleRate())
		}
	}
}
