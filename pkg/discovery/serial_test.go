package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdrlab/linstage/pkg/stage"
)

type proberFunc func(ctx context.Context, port string) ([]stage.DeviceInfo, error)

func (f proberFunc) Probe(ctx context.Context, port string) ([]stage.DeviceInfo, error) {
	return f(ctx, port)
}

func TestSerialPortsWindows(t *testing.T) {
	ports := serialPorts("windows", func(string) bool { return false }, nil)
	require.Len(t, ports, 19)
	assert.Equal(t, "COM1", ports[0])
	assert.Equal(t, "COM19", ports[18])
}

func TestSerialPortsLinuxFiltersMissing(t *testing.T) {
	present := map[string]bool{"/dev/ttyUSB0": true, "/dev/ttyUSB3": true, "/dev/ttyACM9": true}
	ports := serialPorts("linux", func(p string) bool { return present[p] }, nil)
	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyUSB3", "/dev/ttyACM9"}, ports)
}

func TestSerialPortsDarwinIncludesUSBSerial(t *testing.T) {
	glob := func(string) ([]string, error) { return []string{"/dev/cu.usbserial-A1"}, nil }
	ports := serialPorts("darwin", func(string) bool { return false }, glob)
	assert.Equal(t, []string{"/dev/cu.usbserial-A1"}, ports)
}

func TestSerialScannerKeepsPortOrder(t *testing.T) {
	ports := []string{"COM1", "COM2", "COM3", "COM4", "COM5"}
	prober := proberFunc(func(_ context.Context, port string) ([]stage.DeviceInfo, error) {
		switch port {
		case "COM2":
			// Answer late so completion order differs from port order.
			time.Sleep(30 * time.Millisecond)
			return []stage.DeviceInfo{{DeviceID: 2}}, nil
		case "COM4":
			return []stage.DeviceInfo{{DeviceID: 4, Port: "COM4"}}, nil
		case "COM5":
			return nil, errors.New("busy")
		}
		return nil, nil
	})

	s := &SerialScanner{Ports: ports, Prober: prober}
	got, err := s.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, stage.DeviceInfo{DeviceID: 2, Port: "COM2"}, got[0])
	assert.Equal(t, "COM4", got[1].Port)
}

func TestSerialScannerBoundsConcurrency(t *testing.T) {
	var active, peak atomic.Int32
	prober := proberFunc(func(context.Context, string) ([]stage.DeviceInfo, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return nil, nil
	})

	ports := make([]string, 12)
	for i := range ports {
		ports[i] = fmt.Sprintf("COM%d", i+1)
	}
	s := &SerialScanner{Ports: ports, Prober: prober, Concurrency: 3}
	_, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.LessOrEqual(t, peak.Load(), int32(3))
}

func TestSerialScannerProbeTimeout(t *testing.T) {
	prober := proberFunc(func(ctx context.Context, _ string) ([]stage.DeviceInfo, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	s := &SerialScanner{Ports: []string{"COM1"}, Prober: prober, ProbeTimeout: 20 * time.Millisecond}
	start := time.Now()
	got, err := s.Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSerialScannerRequiresProber(t *testing.T) {
	_, err := (&SerialScanner{}).Discover(context.Background())
	assert.Error(t, err)
}
