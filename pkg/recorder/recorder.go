package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hdrlab/linstage/pkg/log"
	"github.com/hdrlab/linstage/pkg/stage"
)

// Defaults for Options.
const (
	DefaultQueueSize     = 1024
	DefaultBatchSize     = 200
	DefaultFlushInterval = 250 * time.Millisecond
)

// ErrClosed is returned by calls on a closed recorder.
var ErrClosed = errors.New("recorder: closed")

// Options configures a Recorder.
type Options struct {
	// QueueSize bounds snapshots waiting to be written.
	QueueSize int

	// BatchSize is the maximum number of rows per transaction.
	BatchSize int

	// FlushInterval is the longest a queued snapshot waits.
	FlushInterval time.Duration

	// Logger receives write failures. Nil discards.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// row is a queued write.
type row struct {
	session string
	snap    stage.Snapshot
	change  *log.StateChangeEvent
	at      time.Time
}

// Recorder writes snapshots to a SQLite database.
type Recorder struct {
	db     *sql.DB
	opts   Options
	logger *slog.Logger

	session atomic.Pointer[string]
	dropped atomic.Uint64
	written atomic.Uint64

	// mu guards closed against concurrent sends on queue.
	mu     sync.RWMutex
	closed bool
	queue  chan row
	flush  chan chan error
	done   chan struct{}
}

// Open opens or creates the database at path and starts the writer.
func Open(path string, opts Options) (*Recorder, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("recorder: database path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("recorder: open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recorder: ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recorder: apply schema: %w", err)
	}

	opts = opts.withDefaults()
	r := &Recorder{
		db:     db,
		opts:   opts,
		logger: opts.Logger.With("component", "recorder"),
		queue:  make(chan row, opts.QueueSize),
		flush:  make(chan chan error),
		done:   make(chan struct{}),
	}
	empty := ""
	r.session.Store(&empty)
	go r.run()
	return r, nil
}

// SetSession sets the session ID attached to subsequent snapshots.
func (r *Recorder) SetSession(id string) {
	r.session.Store(&id)
}

// Session returns the current session ID.
func (r *Recorder) Session() string {
	return *r.session.Load()
}

// Record queues snap. It never blocks; when the queue is full the snapshot
// is dropped. Unknown snapshots are ignored. Safe as an OnSample hook.
func (r *Recorder) Record(snap stage.Snapshot) {
	if !snap.Known {
		return
	}
	r.enqueue(row{session: r.Session(), snap: snap})
}

// Log implements log.Logger. It follows the session of incoming events and
// records state transitions.
func (r *Recorder) Log(ev log.Event) {
	if ev.SessionID != "" && ev.SessionID != r.Session() {
		r.SetSession(ev.SessionID)
	}
	if ev.StateChange != nil {
		change := *ev.StateChange
		r.enqueue(row{session: ev.SessionID, change: &change, at: ev.Timestamp})
	}
}

func (r *Recorder) enqueue(w row) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.queue <- w:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of samples discarded because the queue was full.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Written returns the number of rows committed.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

// Flush writes everything queued before the call.
func (r *Recorder) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case r.flush <- reply:
	case <-r.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes pending rows, stops the writer and closes the database.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
	return r.db.Close()
}

// run is the writer loop.
func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]row, 0, r.opts.BatchSize)
	commit := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := r.write(batch)
		if err != nil {
			r.logger.Warn("write failed", "rows", len(batch), "error", err)
		}
		batch = batch[:0]
		return err
	}

	for {
		select {
		case w, ok := <-r.queue:
			if !ok {
				_ = commit()
				return
			}
			batch = append(batch, w)
			if len(batch) >= r.opts.BatchSize {
				_ = commit()
			}

		case <-ticker.C:
			_ = commit()

		case reply := <-r.flush:
			var err error
			for n := len(r.queue); n > 0; n-- {
				batch = append(batch, <-r.queue)
				if len(batch) >= r.opts.BatchSize {
					err = errors.Join(err, commit())
				}
			}
			reply <- errors.Join(err, commit())
		}
	}
}

// write commits a batch in one transaction.
func (r *Recorder) write(batch []row) error {
	ctx := context.Background()
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	snaps, err := tx.PrepareContext(ctx, insertSnapshot)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer snaps.Close()

	for _, w := range batch {
		if w.change != nil {
			_, err = tx.ExecContext(ctx, insertStateChange,
				w.session, w.at.UnixNano(), w.change.OldState, w.change.NewState, w.change.Reason)
		} else {
			s := w.snap
			_, err = snaps.ExecContext(ctx, w.session, int64(s.Seq), s.Timestamp.UnixNano(),
				s.Position, s.Velocity, boolInt(s.IsMoving), boolInt(s.IsHomed))
		}
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	r.written.Add(uint64(len(batch)))
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ log.Logger = (*Recorder)(nil)
