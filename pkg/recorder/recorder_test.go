package recorder

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdrlab/linstage/pkg/log"
	"github.com/hdrlab/linstage/pkg/stage"
)

func openRecorder(t *testing.T, opts Options) (*Recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "samples.db")
	r, err := Open(path, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r, path
}

func snapshot(seq uint64, pos float64, at time.Time) stage.Snapshot {
	return stage.Snapshot{
		Position:  pos,
		Velocity:  1.5,
		IsMoving:  seq%2 == 0,
		IsHomed:   true,
		Timestamp: at,
		Seq:       seq,
		Known:     true,
	}
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ", Options{})
	assert.Error(t, err)
}

func TestOpenCreatesSchema(t *testing.T) {
	r, path := openRecorder(t, Options{})
	require.NoError(t, r.Close())

	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"snapshots", "state_changes"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestRecordAndQuery(t *testing.T) {
	r, _ := openRecorder(t, Options{})
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	r.SetSession("s1")
	for i := 1; i <= 5; i++ {
		r.Record(snapshot(uint64(i), float64(i), base.Add(time.Duration(i)*10*time.Millisecond)))
	}
	r.SetSession("s2")
	r.Record(snapshot(1, 42, base.Add(time.Second)))
	r.Record(stage.UnknownSnapshot())

	require.NoError(t, r.Flush(ctx))
	assert.Equal(t, uint64(6), r.Written())

	all, err := r.Samples(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, "s1", all[0].SessionID)
	assert.Equal(t, uint64(1), all[0].Seq)
	assert.Equal(t, 1.0, all[0].Position)
	assert.Equal(t, 1.5, all[0].Velocity)
	assert.False(t, all[0].IsMoving)
	assert.True(t, all[1].IsMoving)
	assert.True(t, all[0].IsHomed)
	assert.True(t, all[0].Known)
	assert.True(t, all[0].Timestamp.Equal(base.Add(10*time.Millisecond)))

	s2, err := r.Samples(ctx, Query{SessionID: "s2"})
	require.NoError(t, err)
	require.Len(t, s2, 1)
	assert.Equal(t, 42.0, s2[0].Position)

	window, err := r.Samples(ctx, Query{
		Since: base.Add(20 * time.Millisecond),
		Until: base.Add(40 * time.Millisecond),
	})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, uint64(2), window[0].Seq)
	assert.Equal(t, uint64(3), window[1].Seq)

	limited, err := r.Samples(ctx, Query{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	sessions, err := r.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, 5, sessions[0].Samples)
	assert.Equal(t, 1.0, sessions[0].MinPos)
	assert.Equal(t, 5.0, sessions[0].MaxPos)
	assert.True(t, sessions[0].First.Equal(base.Add(10*time.Millisecond)))
	assert.True(t, sessions[0].Last.Equal(base.Add(50*time.Millisecond)))
	assert.Equal(t, "s2", sessions[1].ID)
}

func TestLogFollowsSession(t *testing.T) {
	r, _ := openRecorder(t, Options{})
	ctx := context.Background()
	at := time.Now()

	r.Log(log.Event{SessionID: "abc", Category: log.CategoryCommand})
	assert.Equal(t, "abc", r.Session())

	r.Log(log.Event{
		Timestamp: at,
		SessionID: "abc",
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			OldState: "CONNECTING",
			NewState: "CONNECTED",
			Reason:   "connect",
		},
	})
	r.Record(snapshot(1, 3, at))
	require.NoError(t, r.Flush(ctx))

	changes, err := r.StateChanges(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "CONNECTING", changes[0].OldState)
	assert.Equal(t, "CONNECTED", changes[0].NewState)
	assert.Equal(t, "connect", changes[0].Reason)
	assert.True(t, changes[0].At.Equal(at))

	samples, err := r.Samples(ctx, Query{SessionID: "abc"})
	require.NoError(t, err)
	assert.Len(t, samples, 1)

	none, err := r.StateChanges(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBatchAndInterval(t *testing.T) {
	r, _ := openRecorder(t, Options{BatchSize: 3, FlushInterval: 20 * time.Millisecond})
	at := time.Now()

	for i := 1; i <= 4; i++ {
		r.Record(snapshot(uint64(i), 0, at))
	}
	require.Eventually(t, func() bool { return r.Written() == 4 }, 2*time.Second, 5*time.Millisecond)
}

func TestQueueFullDrops(t *testing.T) {
	r, _ := openRecorder(t, Options{QueueSize: 1, FlushInterval: time.Hour})

	at := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.Record(snapshot(uint64(i+1), 0, at))
		}(i)
	}
	wg.Wait()
	require.NoError(t, r.Flush(context.Background()))

	assert.Equal(t, uint64(100), r.Written()+r.Dropped())
}

func TestCloseFlushes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.db")
	r, err := Open(path, Options{FlushInterval: time.Hour})
	require.NoError(t, err)

	r.SetSession("s")
	r.Record(snapshot(1, 1, time.Now()))
	r.Record(snapshot(2, 2, time.Now()))
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	r.Record(snapshot(3, 3, time.Now()))
	assert.ErrorIs(t, r.Flush(context.Background()), ErrClosed)

	reopened, err := Open(path, Options{})
	require.NoError(t, err)
	defer reopened.Close()

	samples, err := reopened.Samples(context.Background(), Query{SessionID: "s"})
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestPrune(t *testing.T) {
	r, _ := openRecorder(t, Options{})
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	for i := 0; i < 4; i++ {
		r.Record(snapshot(uint64(i+1), 0, base.Add(time.Duration(i)*time.Minute)))
	}
	require.NoError(t, r.Flush(ctx))

	n, err := r.Prune(ctx, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := r.Samples(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, left, 2)
}
