package discovery

import (
	"context"
	"errors"

	"github.com/hdrlab/linstage/pkg/stage"
)

// Discovery errors.
var (
	// ErrNoDevices indicates a scan completed without finding a device.
	ErrNoDevices = errors.New("no devices found")

	// ErrInvalidTXT indicates a TXT record set without a usable identity.
	ErrInvalidTXT = errors.New("invalid TXT record")
)

// First returns the device chosen for an automatic port: the first one
// discovered.
func First(devices []stage.DeviceInfo) (stage.DeviceInfo, error) {
	if len(devices) == 0 {
		return stage.DeviceInfo{}, ErrNoDevices
	}
	return devices[0], nil
}

// Func adapts a function to stage.Discoverer.
type Func func(ctx context.Context) ([]stage.DeviceInfo, error)

// Discover calls f.
func (f Func) Discover(ctx context.Context) ([]stage.DeviceInfo, error) {
	return f(ctx)
}

// Chain runs discoverers in order and concatenates their results. A port
// reported twice keeps its first entry.
//
// Failures of individual discoverers are tolerated as long as one yields a
// device; otherwise the joined errors are returned.
type Chain []stage.Discoverer

// Discover implements stage.Discoverer.
func (c Chain) Discover(ctx context.Context) ([]stage.DeviceInfo, error) {
	var (
		out  []stage.DeviceInfo
		errs []error
		seen = make(map[string]bool)
	)
	for _, d := range c {
		if d == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		devices, err := d.Discover(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		for _, dev := range devices {
			if seen[dev.Port] {
				continue
			}
			seen[dev.Port] = true
			out = append(out, dev)
		}
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

var (
	_ stage.Discoverer = Func(nil)
	_ stage.Discoverer = Chain(nil)
)
