package zaber

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Protocol errors.
var (
	// ErrRejected indicates the device answered RJ.
	ErrRejected = errors.New("zaber: command rejected")

	// ErrMalformedReply indicates a reply line that cannot be parsed.
	ErrMalformedReply = errors.New("zaber: malformed reply")
)

// Reply flags.
const (
	FlagOK       = "OK"
	FlagRejected = "RJ"
)

// Axis status values.
const (
	StatusIdle = "IDLE"
	StatusBusy = "BUSY"
)

// Warning flags.
const (
	// WarningNone is reported when no warning is active.
	WarningNone = "--"

	// WarningNoReference means the axis position is not referenced.
	WarningNoReference = "WR"
)

// FormatCommand renders a command line. Device 0 broadcasts; axis 0
// addresses the device itself. An empty data is a status query.
func FormatCommand(device, axis int, data string) string {
	if data == "" {
		return fmt.Sprintf("/%d %d\n", device, axis)
	}
	return fmt.Sprintf("/%d %d %s\n", device, axis, data)
}

// Reply is a parsed reply line.
type Reply struct {
	Device  int
	Axis    int
	Flag    string
	Status  string
	Warning string
	Data    string
}

// Busy reports whether the axis was moving.
func (r Reply) Busy() bool {
	return r.Status == StatusBusy
}

// Homed reports whether the axis holds a reference position.
func (r Reply) Homed() bool {
	return r.Warning != WarningNoReference
}

// Err returns ErrRejected with the device's reason for RJ replies.
func (r Reply) Err() error {
	if r.Flag == FlagRejected {
		return fmt.Errorf("%w: %s", ErrRejected, r.Data)
	}
	return nil
}

// Int parses Data as an integer.
func (r Reply) Int() (int64, error) {
	n, err := strconv.ParseInt(r.Data, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: data %q", ErrMalformedReply, r.Data)
	}
	return n, nil
}

// IsReply reports whether line is a reply, as opposed to an info or alert
// message.
func IsReply(line string) bool {
	return strings.HasPrefix(line, "@")
}

// ParseReply parses a reply line such as "@01 1 OK IDLE -- 2099738".
func ParseReply(line string) (Reply, error) {
	line = strings.TrimSpace(line)
	if !IsReply(line) {
		return Reply{}, fmt.Errorf("%w: %q", ErrMalformedReply, line)
	}

	fields := strings.Fields(line[1:])
	if len(fields) < 5 {
		return Reply{}, fmt.Errorf("%w: %q", ErrMalformedReply, line)
	}

	device, err := strconv.Atoi(fields[0])
	if err != nil {
		return Reply{}, fmt.Errorf("%w: device %q", ErrMalformedReply, fields[0])
	}
	axis, err := strconv.Atoi(fields[1])
	if err != nil {
		return Reply{}, fmt.Errorf("%w: axis %q", ErrMalformedReply, fields[1])
	}

	r := Reply{
		Device:  device,
		Axis:    axis,
		Flag:    fields[2],
		Status:  fields[3],
		Warning: fields[4],
		Data:    strings.Join(fields[5:], " "),
	}
	if r.Flag != FlagOK && r.Flag != FlagRejected {
		return Reply{}, fmt.Errorf("%w: flag %q", ErrMalformedReply, r.Flag)
	}
	return r, nil
}
