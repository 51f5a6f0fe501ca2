package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdrlab/linstage/pkg/backend/sim"
	"github.com/hdrlab/linstage/pkg/controller"
	"github.com/hdrlab/linstage/pkg/discovery"
	"github.com/hdrlab/linstage/pkg/persistence"
	"github.com/hdrlab/linstage/pkg/stage"
)

func TestParseConfigDefaults(t *testing.T) {
	cfg, err := parseConfig(nil, nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, stage.PortAuto, cfg.Port)
	assert.Equal(t, 0.0, cfg.MinMm)
	assert.Equal(t, 100.0, cfg.MaxMm)
	assert.Equal(t, 10.0, cfg.MaxVelocity)
	assert.Equal(t, 100.0, cfg.RateHz)
	assert.Equal(t, 115200, cfg.Baud)
	assert.Equal(t, persistence.DefaultDevicesFile, cfg.DevicesFile)
	assert.True(t, cfg.MDNS)
	assert.Equal(t, 5*time.Second, cfg.ScanTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestParseConfigEnvThenFlags(t *testing.T) {
	environ := []string{
		"LINSTAGE_PORT=/dev/ttyUSB0",
		"LINSTAGE_MAX_VELOCITY=4.5",
		"LINSTAGE_MDNS=false",
		"LINSTAGE_SCAN_TIMEOUT=1500ms",
		"LINSTAGE_RECORD=env.db",
	}
	cfg, err := parseConfig([]string{"-port", "COM4", "-max", "50", "-interactive"}, environ, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "COM4", cfg.Port, "flag overrides env")
	assert.Equal(t, 4.5, cfg.MaxVelocity, "env sets default")
	assert.Equal(t, 50.0, cfg.MaxMm)
	assert.False(t, cfg.MDNS)
	assert.Equal(t, 1500*time.Millisecond, cfg.ScanTimeout)
	assert.Equal(t, "env.db", cfg.Record)
	assert.True(t, cfg.Interactive)
}

func TestParseConfigErrors(t *testing.T) {
	_, err := parseConfig([]string{"-interactive", "-dashboard"}, nil, io.Discard)
	assert.Error(t, err)

	_, err = parseConfig(nil, []string{"LINSTAGE_RATE_HZ=fast"}, io.Discard)
	assert.Error(t, err)

	_, err = parseConfig([]string{"-bogus"}, nil, io.Discard)
	assert.Error(t, err)
}

func TestStageConfig(t *testing.T) {
	cfg := &Config{Port: stage.PortAuto, MinMm: 0, MaxMm: 100, MaxVelocity: 10, RateHz: 100, Simulate: true}
	sc, err := cfg.StageConfig()
	require.NoError(t, err)
	assert.Equal(t, sim.DefaultPort, sc.Port)

	cfg.MaxMm = -1
	_, err = cfg.StageConfig()
	assert.ErrorIs(t, err, stage.ErrConfig)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := parseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseLevel("loud")
	assert.Error(t, err)
}

func TestRunScanSavesDevices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devices.json")
	cfg := &Config{DevicesFile: path, ScanTimeout: time.Second}
	found := discovery.Func(func(context.Context) ([]stage.DeviceInfo, error) {
		return []stage.DeviceInfo{{Port: "COM3", DeviceID: 50081, Name: "X-LSM100A", AxisCount: 1}}, nil
	})

	out := &bytes.Buffer{}
	require.NoError(t, runScan(context.Background(), cfg, found, out))
	assert.Contains(t, out.String(), "COM3")
	assert.Contains(t, out.String(), "Found 1 device(s)")

	list, err := persistence.LoadDevices(path)
	require.NoError(t, err)
	require.NotNil(t, list)
	assert.Equal(t, 1, list.DeviceCount)
	assert.Equal(t, "X-LSM100A", list.Devices[0].Name)
}

func TestRunScanFailure(t *testing.T) {
	cfg := &Config{ScanTimeout: time.Second}
	failing := discovery.Func(func(context.Context) ([]stage.DeviceInfo, error) {
		return nil, errors.New("no ports")
	})
	assert.Error(t, runScan(context.Background(), cfg, failing, io.Discard))
}

func TestOpenControllerSavesAndReloadsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stage.yaml")
	cfg := &Config{
		Port: sim.DefaultPort, MinMm: 5, MaxMm: 80, MaxVelocity: 3, RateHz: 50,
		ConfigFile: path,
	}
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	c, err := openController(ctx, cfg, sim.New(sim.Config{}), controller.Options{}, logger)
	require.NoError(t, err)
	c.Disconnect()

	saved, info, err := persistence.NewConfigStore(path).Load()
	require.NoError(t, err)
	assert.Equal(t, stage.Limits{Min: 5, Max: 80}, saved.PositionLimit)
	require.NotNil(t, info)
	assert.Equal(t, "SIM-0001", info.SerialNumber)

	// Flags no longer matter once the file exists.
	cfg.MaxMm = 20
	c, err = openController(ctx, cfg, sim.New(sim.Config{}), controller.Options{}, logger)
	require.NoError(t, err)
	defer c.Disconnect()
	assert.Equal(t, 80.0, c.Config().PositionLimit.Max)
}

func TestOpenControllerReset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stage.json")
	cfg := &Config{Port: sim.DefaultPort, MinMm: 0, MaxMm: 100, MaxVelocity: 10, RateHz: 100, ConfigFile: path}
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	c, err := openController(ctx, cfg, sim.New(sim.Config{}), controller.Options{}, logger)
	require.NoError(t, err)
	c.Disconnect()

	cfg.MaxMm = 40
	cfg.Reset = true
	c, err = openController(ctx, cfg, sim.New(sim.Config{}), controller.Options{}, logger)
	require.NoError(t, err)
	defer c.Disconnect()
	assert.Equal(t, 40.0, c.Config().PositionLimit.Max)
}
