package zaber

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// fakeAxis is the state of one simulated device.
type fakeAxis struct {
	id        int
	serial    string
	pos       int64
	vel       int64
	homed     bool
	homePolls int
}

// fakeChain is a Port answering like a daisy chain of Zaber devices.
type fakeChain struct {
	mu      sync.Mutex
	devices map[int]*fakeAxis
	silent  bool
	chatty  bool
	written []string

	out     chan []byte
	pending []byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeChain(devices ...*fakeAxis) *fakeChain {
	f := &fakeChain{
		devices: make(map[int]*fakeAxis),
		out:     make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
	for i, d := range devices {
		f.devices[i+1] = d
	}
	return f
}

func (f *fakeChain) dialer() Dialer {
	return func(ctx context.Context, name string, _ int) (Port, bool, error) {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		return f, false, nil
	}
}

func (f *fakeChain) setSilent(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silent = v
}

func (f *fakeChain) commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func (f *fakeChain) device(n int) *fakeAxis {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.devices[n]
}

func (f *fakeChain) Write(p []byte) (int, error) {
	select {
	case <-f.closed:
		return 0, io.ErrClosedPipe
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		f.written = append(f.written, line)
		if f.silent {
			continue
		}
		for _, reply := range f.respond(line) {
			f.out <- []byte(reply + "\r\n")
		}
	}
	return len(p), nil
}

func (f *fakeChain) Read(p []byte) (int, error) {
	if len(f.pending) == 0 {
		select {
		case b := <-f.out:
			f.pending = b
		case <-f.closed:
			return 0, io.EOF
		}
	}
	n := copy(p, f.pending)
	f.pending = f.pending[n:]
	return n, nil
}

func (f *fakeChain) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

// respond returns the reply lines for one command. Caller holds mu.
func (f *fakeChain) respond(line string) []string {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	device, _ := strconv.Atoi(fields[0])
	axis, _ := strconv.Atoi(fields[1])
	data := strings.Join(fields[2:], " ")

	var replies []string
	if f.chatty {
		replies = append(replies, fmt.Sprintf("#%02d %d info message", device, axis))
	}
	if device == 0 {
		for n := 1; n <= len(f.devices); n++ {
			replies = append(replies, f.answer(n, axis, f.devices[n], data))
		}
		return replies
	}
	if d, ok := f.devices[device]; ok {
		replies = append(replies, f.answer(device, axis, d, data))
	}
	return replies
}

func (f *fakeChain) answer(n, axis int, d *fakeAxis, data string) string {
	reply := func(flag, value string) string {
		status := "IDLE"
		if d.vel != 0 || d.homePolls > 0 {
			status = "BUSY"
		}
		warning := "--"
		if !d.homed {
			warning = "WR"
		}
		return fmt.Sprintf("@%02d %d %s %s %s %s", n, axis, flag, status, warning, value)
	}

	args := strings.Fields(data)
	switch {
	case data == "":
		if d.homePolls > 0 {
			d.homePolls--
			if d.homePolls == 0 {
				d.homed = true
				d.pos = 0
			}
		}
		return reply("OK", "0")
	case data == "get deviceid":
		return reply("OK", strconv.Itoa(d.id))
	case data == "get system.serial":
		return reply("OK", d.serial)
	case data == "get version":
		return reply("OK", "7.38")
	case data == "get system.axiscount":
		return reply("OK", "1")
	case data == "get pos":
		d.pos += d.vel / 100
		return reply("OK", strconv.FormatInt(d.pos, 10))
	case data == "home":
		d.homePolls = 2
		return reply("OK", "0")
	case data == "stop":
		d.vel = 0
		return reply("OK", "0")
	case len(args) == 3 && args[0] == "move" && args[1] == "abs":
		d.pos, _ = strconv.ParseInt(args[2], 10, 64)
		return reply("OK", "0")
	case len(args) == 3 && args[0] == "move" && args[1] == "vel":
		d.vel, _ = strconv.ParseInt(args[2], 10, 64)
		return reply("OK", "0")
	}
	return reply("RJ", "BADCOMMAND")
}
