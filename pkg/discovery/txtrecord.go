package discovery

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/hdrlab/linstage/pkg/stage"
)

// TXT record keys.
const (
	TXTKeyDeviceID = "id"
	TXTKeySerial   = "sn"
	TXTKeyName     = "name"
	TXTKeyFirmware = "fw"
	TXTKeyType     = "type"
	TXTKeyAxes     = "axes"
)

// TXTRecordMap holds TXT records as key/value pairs.
type TXTRecordMap map[string]string

// EncodeDeviceTXT builds the TXT records advertising info. Empty fields are
// omitted.
func EncodeDeviceTXT(info stage.DeviceInfo) TXTRecordMap {
	txt := TXTRecordMap{
		TXTKeyDeviceID: strconv.Itoa(info.DeviceID),
	}
	if info.SerialNumber != "" {
		txt[TXTKeySerial] = info.SerialNumber
	}
	if info.Name != "" {
		txt[TXTKeyName] = info.Name
	}
	if info.FirmwareVersion != "" {
		txt[TXTKeyFirmware] = info.FirmwareVersion
	}
	if info.DeviceType != "" {
		txt[TXTKeyType] = info.DeviceType
	}
	if info.AxisCount > 0 {
		txt[TXTKeyAxes] = strconv.Itoa(info.AxisCount)
	}
	return txt
}

// DecodeDeviceTXT parses a device identity. The returned info has no Port.
func DecodeDeviceTXT(txt TXTRecordMap) (stage.DeviceInfo, error) {
	var info stage.DeviceInfo

	id, ok := txt[TXTKeyDeviceID]
	if !ok {
		return info, fmt.Errorf("%w: missing %s", ErrInvalidTXT, TXTKeyDeviceID)
	}
	n, err := strconv.Atoi(id)
	if err != nil || n < 0 {
		return info, fmt.Errorf("%w: %s=%q", ErrInvalidTXT, TXTKeyDeviceID, id)
	}
	info.DeviceID = n

	info.SerialNumber = txt[TXTKeySerial]
	info.Name = txt[TXTKeyName]
	info.FirmwareVersion = txt[TXTKeyFirmware]
	info.DeviceType = txt[TXTKeyType]

	if axes, ok := txt[TXTKeyAxes]; ok {
		n, err := strconv.Atoi(axes)
		if err != nil || n < 0 {
			return info, fmt.Errorf("%w: %s=%q", ErrInvalidTXT, TXTKeyAxes, axes)
		}
		info.AxisCount = n
	}
	return info, nil
}

// TXTRecordsToStrings converts a TXTRecordMap to "key=value" strings, sorted
// by key.
func TXTRecordsToStrings(txt TXTRecordMap) []string {
	result := make([]string, 0, len(txt))
	for k, v := range txt {
		result = append(result, k+"="+v)
	}
	sort.Strings(result)
	return result
}

// StringsToTXTRecords parses "key=value" strings into a TXTRecordMap.
func StringsToTXTRecords(strs []string) TXTRecordMap {
	txt := make(TXTRecordMap)
	for _, s := range strs {
		k, v, found := strings.Cut(s, "=")
		if !found && k == "" {
			continue
		}
		// Key without value (boolean flag)
		txt[k] = v
	}
	return txt
}
