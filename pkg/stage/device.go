package stage

import "fmt"

// DeviceInfo describes a discovered or connected stage device.
type DeviceInfo struct {
	Port            string `json:"port" yaml:"port"`
	DeviceID        int    `json:"device_id" yaml:"device_id"`
	SerialNumber    string `json:"serial_number" yaml:"serial_number"`
	Name            string `json:"name" yaml:"name"`
	FirmwareVersion string `json:"firmware_version" yaml:"firmware_version"`
	DeviceType      string `json:"device_type" yaml:"device_type"`
	AxisCount       int    `json:"axis_count" yaml:"axis_count"`
}

// String returns a short description like "X-LSM100A (SN 12345) on COM3".
func (d DeviceInfo) String() string {
	name := d.Name
	if name == "" {
		name = fmt.Sprintf("device %d", d.DeviceID)
	}
	if d.SerialNumber != "" {
		return fmt.Sprintf("%s (SN %s) on %s", name, d.SerialNumber, d.Port)
	}
	return fmt.Sprintf("%s on %s", name, d.Port)
}
