package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdrlab/linstage/pkg/stage"
)

func connect(t *testing.T, b *Backend) stage.Session {
	t.Helper()
	s, err := b.Connect(context.Background(), DefaultPort)
	require.NoError(t, err)
	return s
}

func TestConnectRejectsForeignPort(t *testing.T) {
	b := New(Config{})
	_, err := b.Connect(context.Background(), "/dev/ttyUSB0")
	assert.ErrorIs(t, err, stage.ErrConnection)
}

func TestConnectHonoursContext(t *testing.T) {
	b := New(Config{ConnectDelay: 5 * time.Second})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Connect(ctx, DefaultPort)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestVelocityMotionIsLinear(t *testing.T) {
	b := New(Config{Start: 10})
	s := connect(t, b)
	ctx := context.Background()

	require.NoError(t, b.SetVelocity(ctx, s, 5))
	time.Sleep(200 * time.Millisecond)

	r, err := b.ReadPosition(ctx, s)
	require.NoError(t, err)
	assert.True(t, r.Moving)
	assert.Equal(t, 5.0, r.Velocity)
	assert.InDelta(t, 11.0, r.Position, 0.25)

	require.NoError(t, b.Stop(ctx, s))
	stopped := b.Position()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, b.Position())
}

func TestMoveReachesTarget(t *testing.T) {
	b := New(Config{Start: 0, MoveSpeed: 1000})
	s := connect(t, b)
	ctx := context.Background()

	require.NoError(t, b.MoveAbsolute(ctx, s, 50))
	time.Sleep(100 * time.Millisecond)

	r, err := b.ReadPosition(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 50.0, r.Position)
	assert.False(t, r.Moving)

	moves := b.CallsOf(OpMove)
	require.Len(t, moves, 1)
	assert.Equal(t, 50.0, moves[0].Value)
}

func TestTravelEndStopsMotion(t *testing.T) {
	b := New(Config{Start: 0, Travel: stage.Limits{Min: 0, Max: 1}})
	s := connect(t, b)
	ctx := context.Background()

	require.NoError(t, b.SetVelocity(ctx, s, 100))
	time.Sleep(50 * time.Millisecond)

	r, err := b.ReadPosition(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 1.0, r.Position)
	assert.False(t, r.Moving)
}

func TestHomeSetsReference(t *testing.T) {
	b := New(Config{Start: 30})
	s := connect(t, b)
	ctx := context.Background()

	homed, err := b.IsHomed(ctx, s)
	require.NoError(t, err)
	assert.False(t, homed)

	require.NoError(t, b.Home(ctx, s))

	homed, err = b.IsHomed(ctx, s)
	require.NoError(t, err)
	assert.True(t, homed)
	assert.Equal(t, 0.0, b.Position())
}

func TestInjectedFailure(t *testing.T) {
	b := New(Config{})
	s := connect(t, b)
	boom := errors.New("boom")

	b.Fail(OpRead, boom)
	_, err := b.ReadPosition(context.Background(), s)
	assert.ErrorIs(t, err, boom)

	b.Fail(OpRead, nil)
	_, err = b.ReadPosition(context.Background(), s)
	assert.NoError(t, err)
	assert.Equal(t, 2, b.Reads())
}

func TestClosedSession(t *testing.T) {
	b := New(Config{})
	s := connect(t, b)
	require.NoError(t, s.Close())

	_, err := b.ReadPosition(context.Background(), s)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestIdentifyAndDiscover(t *testing.T) {
	b := New(Config{})
	s := connect(t, b)

	info, err := b.Identify(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, info.Port)
	assert.Equal(t, 1, info.AxisCount)

	devices, err := b.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, DefaultPort, devices[0].Port)
}
