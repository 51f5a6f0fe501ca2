package persistence

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hdrlab/linstage/pkg/stage"
)

// DefaultDevicesFile is the conventional device list file name.
const DefaultDevicesFile = "discovered_devices.json"

// DeviceList is the on-disk result of a device scan.
type DeviceList struct {
	Devices               []stage.DeviceInfo `json:"discovered_devices" yaml:"discovered_devices"`
	ScanTimestamp         float64            `json:"scan_timestamp" yaml:"scan_timestamp"`
	ScanTimestampReadable string             `json:"scan_timestamp_readable" yaml:"scan_timestamp_readable"`
	DeviceCount           int                `json:"device_count" yaml:"device_count"`
}

// ScannedAt returns the scan time, or zero if unknown.
func (l *DeviceList) ScannedAt() time.Time {
	return fromUnixSeconds(l.ScanTimestamp)
}

// SaveDevices writes a device list scanned at t.
func SaveDevices(path string, devices []stage.DeviceInfo, t time.Time) error {
	if devices == nil {
		devices = []stage.DeviceInfo{}
	}
	list := &DeviceList{
		Devices:               devices,
		ScanTimestamp:         unixSeconds(t),
		ScanTimestampReadable: t.Format(readableLayout),
		DeviceCount:           len(devices),
	}
	if err := writeFile(path, list); err != nil {
		return fmt.Errorf("persistence: save %s: %w", path, err)
	}
	return nil
}

// LoadDevices reads a device list. Returns nil, nil if the file doesn't
// exist.
func LoadDevices(path string) (*DeviceList, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	list := &DeviceList{}
	if err := unmarshal(path, data, list); err != nil {
		return nil, fmt.Errorf("persistence: %s: %w", path, err)
	}
	return list, nil
}

// DeviceFile reports the devices of a saved scan. It lets an automatic
// port reuse the last scan before probing hardware.
type DeviceFile struct {
	Path string
}

// Discover implements stage.Discoverer. A missing file yields no devices.
func (f DeviceFile) Discover(ctx context.Context) ([]stage.DeviceInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	list, err := LoadDevices(f.Path)
	if err != nil || list == nil {
		return nil, err
	}
	return list.Devices, nil
}

var _ stage.Discoverer = DeviceFile{}
