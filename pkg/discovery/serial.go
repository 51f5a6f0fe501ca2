package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/hdrlab/linstage/pkg/stage"
)

// Serial scan defaults.
const (
	// DefaultProbeTimeout bounds the probe of one port.
	DefaultProbeTimeout = 2 * time.Second

	// DefaultProbeConcurrency is the number of ports probed at once.
	DefaultProbeConcurrency = 4
)

// Prober identifies the devices answering on a serial port.
type Prober interface {
	Probe(ctx context.Context, port string) ([]stage.DeviceInfo, error)
}

// SerialScanner discovers devices on local serial ports.
type SerialScanner struct {
	// Ports to scan. Nil scans DefaultSerialPorts.
	Ports []string

	Prober Prober

	// ProbeTimeout bounds each port. Zero means DefaultProbeTimeout.
	ProbeTimeout time.Duration

	// Concurrency limits parallel probes. Zero means DefaultProbeConcurrency.
	Concurrency int

	Logger *slog.Logger
}

// NewSerialScanner creates a scanner over the default port list.
func NewSerialScanner(p Prober, logger *slog.Logger) *SerialScanner {
	return &SerialScanner{Prober: p, Logger: logger}
}

// Discover probes every port and returns the devices found, in port order.
// Ports that fail to open or answer are skipped.
func (s *SerialScanner) Discover(ctx context.Context) ([]stage.DeviceInfo, error) {
	if s.Prober == nil {
		return nil, fmt.Errorf("discovery: serial scanner has no prober")
	}

	ports := s.Ports
	if ports == nil {
		ports = DefaultSerialPorts()
	}
	timeout := s.ProbeTimeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	workers := s.Concurrency
	if workers <= 0 {
		workers = DefaultProbeConcurrency
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	results := make([][]stage.DeviceInfo, len(ports))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, port := range ports {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			devices, err := s.Prober.Probe(probeCtx, port)
			if err != nil {
				logger.Debug("probe failed", "port", port, "error", err)
				return
			}
			for j := range devices {
				if devices[j].Port == "" {
					devices[j].Port = port
				}
			}
			results[i] = devices
		}()
	}
	wg.Wait()

	var out []stage.DeviceInfo
	for _, devices := range results {
		out = append(out, devices...)
	}
	logger.Info("serial scan complete", "ports", len(ports), "devices", len(out))
	return out, ctx.Err()
}

// DefaultSerialPorts returns the candidate serial ports of this platform.
func DefaultSerialPorts() []string {
	return serialPorts(runtime.GOOS, exists, filepath.Glob)
}

func serialPorts(goos string, exists func(string) bool, glob func(string) ([]string, error)) []string {
	var ports []string
	switch goos {
	case "windows":
		for i := 1; i < 20; i++ {
			ports = append(ports, fmt.Sprintf("COM%d", i))
		}
		return ports
	case "darwin":
		matches, _ := glob("/dev/cu.usbserial*")
		ports = append(ports, matches...)
	}

	for _, prefix := range []string{"/dev/ttyUSB", "/dev/ttyACM"} {
		for i := range 10 {
			p := fmt.Sprintf("%s%d", prefix, i)
			if exists(p) {
				ports = append(ports, p)
			}
		}
	}
	return ports
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

var _ stage.Discoverer = (*SerialScanner)(nil)
