package recorder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hdrlab/linstage/pkg/stage"
)

// Sample is a recorded snapshot.
type Sample struct {
	SessionID string
	stage.Snapshot
}

// StateChange is a recorded control state transition.
type StateChange struct {
	SessionID string
	At        time.Time
	OldState  string
	NewState  string
	Reason    string
}

// SessionSummary describes the samples of one session.
type SessionSummary struct {
	ID      string
	First   time.Time
	Last    time.Time
	Samples int
	MinPos  float64
	MaxPos  float64
}

// Query selects samples. Zero fields match everything.
type Query struct {
	SessionID string
	Since     time.Time
	Until     time.Time

	// Limit caps the result. Zero means no limit.
	Limit int
}

func (q Query) where() (string, []any) {
	var conds []string
	var args []any
	if q.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, q.SessionID)
	}
	if !q.Since.IsZero() {
		conds = append(conds, "taken_at >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if !q.Until.IsZero() {
		conds = append(conds, "taken_at < ?")
		args = append(args, q.Until.UnixNano())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Samples returns matching samples in recording order.
func (r *Recorder) Samples(ctx context.Context, q Query) ([]Sample, error) {
	where, args := q.where()
	stmt := `SELECT session_id, seq, taken_at, position_mm, velocity_mm_s, moving, homed
	         FROM snapshots` + where + ` ORDER BY id`
	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("recorder: query samples: %w", err)
	}
	defer rows.Close()

	var out []Sample
	for rows.Next() {
		var (
			s             Sample
			seq, takenAt  int64
			moving, homed int
		)
		if err := rows.Scan(&s.SessionID, &seq, &takenAt, &s.Position, &s.Velocity, &moving, &homed); err != nil {
			return nil, fmt.Errorf("recorder: scan sample: %w", err)
		}
		s.Seq = uint64(seq)
		s.Timestamp = time.Unix(0, takenAt)
		s.IsMoving = moving != 0
		s.IsHomed = homed != 0
		s.Known = true
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recorder: iterate samples: %w", err)
	}
	return out, nil
}

// StateChanges returns the recorded transitions of a session, or of all
// sessions when sessionID is empty.
func (r *Recorder) StateChanges(ctx context.Context, sessionID string) ([]StateChange, error) {
	stmt := `SELECT session_id, changed_at, old_state, new_state, reason FROM state_changes`
	var args []any
	if sessionID != "" {
		stmt += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	stmt += " ORDER BY id"

	rows, err := r.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("recorder: query state changes: %w", err)
	}
	defer rows.Close()

	var out []StateChange
	for rows.Next() {
		var (
			c  StateChange
			at int64
		)
		if err := rows.Scan(&c.SessionID, &at, &c.OldState, &c.NewState, &c.Reason); err != nil {
			return nil, fmt.Errorf("recorder: scan state change: %w", err)
		}
		c.At = time.Unix(0, at)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Sessions summarizes every recorded session, oldest first.
func (r *Recorder) Sessions(ctx context.Context) ([]SessionSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT session_id, MIN(taken_at), MAX(taken_at), COUNT(*), MIN(position_mm), MAX(position_mm)
		FROM snapshots
		GROUP BY session_id
		ORDER BY MIN(id)`)
	if err != nil {
		return nil, fmt.Errorf("recorder: query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionSummary
	for rows.Next() {
		var (
			s           SessionSummary
			first, last int64
		)
		if err := rows.Scan(&s.ID, &first, &last, &s.Samples, &s.MinPos, &s.MaxPos); err != nil {
			return nil, fmt.Errorf("recorder: scan session: %w", err)
		}
		s.First = time.Unix(0, first)
		s.Last = time.Unix(0, last)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Prune deletes samples taken before cutoff and returns how many were removed.
func (r *Recorder) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM snapshots WHERE taken_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("recorder: prune: %w", err)
	}
	return res.RowsAffected()
}
