package zaber

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrClosed is returned for requests on a closed connection.
var ErrClosed = errors.New("zaber: connection closed")

// lineBuffer is the number of unread lines kept before the reader blocks.
const lineBuffer = 64

// conn exchanges command and reply lines over a Port. Requests are
// serialized; one request is outstanding at a time. Waiting for the
// request slot honors the caller's context.
type conn struct {
	port    Port
	idleEOF bool
	logger  *slog.Logger

	slot chan struct{} // serializes requests

	lines  chan string
	closed atomic.Bool
	done   chan struct{}

	errMu   sync.Mutex
	readErr error
}

func newConn(port Port, idleEOF bool, logger *slog.Logger) *conn {
	c := &conn{
		port:    port,
		idleEOF: idleEOF,
		logger:  logger,
		slot:    make(chan struct{}, 1),
		lines:   make(chan string, lineBuffer),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *conn) readLoop() {
	defer close(c.done)

	buf := make([]byte, 256)
	var pending []byte
	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := string(bytes.TrimRight(pending[:i], "\r"))
				pending = pending[i+1:]
				if line == "" {
					continue
				}
				select {
				case c.lines <- line:
				default:
					c.logger.Debug("dropping unread line", "line", line)
				}
			}
		}
		if err != nil {
			if c.closed.Load() {
				return
			}
			if errors.Is(err, io.EOF) && c.idleEOF {
				continue
			}
			c.errMu.Lock()
			c.readErr = err
			c.errMu.Unlock()
			return
		}
	}
}

func (c *conn) err() error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.readErr != nil {
		return fmt.Errorf("zaber: read: %w", c.readErr)
	}
	return ErrClosed
}

// request sends data to device/axis and waits for its reply.
func (c *conn) request(ctx context.Context, device, axis int, data string) (Reply, error) {
	if err := c.acquire(ctx); err != nil {
		return Reply{}, err
	}
	defer c.release()

	if c.closed.Load() {
		return Reply{}, ErrClosed
	}
	c.drain()

	if _, err := io.WriteString(c.port, FormatCommand(device, axis, data)); err != nil {
		return Reply{}, fmt.Errorf("zaber: write: %w", err)
	}

	for {
		line, err := c.next(ctx)
		if err != nil {
			return Reply{}, err
		}
		if !IsReply(line) {
			c.logger.Debug("ignoring message", "line", line)
			continue
		}
		r, err := ParseReply(line)
		if err != nil {
			return Reply{}, err
		}
		if device != 0 && r.Device != device {
			continue
		}
		return r, r.Err()
	}
}

// broadcast sends data to every device and collects replies until none
// arrive for quiet.
func (c *conn) broadcast(ctx context.Context, data string, quiet time.Duration) ([]Reply, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	if c.closed.Load() {
		return nil, ErrClosed
	}
	c.drain()

	if _, err := io.WriteString(c.port, FormatCommand(0, 0, data)); err != nil {
		return nil, fmt.Errorf("zaber: write: %w", err)
	}

	var replies []Reply
	for {
		waitCtx, cancel := context.WithTimeout(ctx, quiet)
		line, err := c.next(waitCtx)
		cancel()
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return replies, nil
			}
			return replies, err
		}
		if !IsReply(line) {
			continue
		}
		if r, err := ParseReply(line); err == nil && r.Flag == FlagOK {
			replies = append(replies, r)
		}
	}
}

// acquire takes the request slot, giving up when ctx is done or the
// connection ends.
func (c *conn) acquire(ctx context.Context) error {
	select {
	case c.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return c.err()
	}
}

func (c *conn) release() {
	<-c.slot
}

func (c *conn) next(ctx context.Context) (string, error) {
	select {
	case line := <-c.lines:
		return line, nil
	case <-c.done:
		// Lines read before the loop ended are still delivered.
		select {
		case line := <-c.lines:
			return line, nil
		default:
		}
		return "", c.err()
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// drain discards lines left over from an abandoned request.
func (c *conn) drain() {
	for {
		select {
		case line := <-c.lines:
			c.logger.Debug("discarding stale line", "line", line)
		default:
			return
		}
	}
}

func (c *conn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	err := c.port.Close()
	<-c.done
	return err
}
