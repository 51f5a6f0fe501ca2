package controller

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hdrlab/linstage/pkg/backend/sim"
	"github.com/hdrlab/linstage/pkg/discovery"
	"github.com/hdrlab/linstage/pkg/log"
	"github.com/hdrlab/linstage/pkg/retry"
	"github.com/hdrlab/linstage/pkg/stage"
	"github.com/hdrlab/linstage/pkg/stage/mocks"
)

type nopSession struct{}

func (*nopSession) Close() error { return nil }

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	b := sim.New(sim.Config{})
	c := newControllerOn(t, b, "COM3", Options{})

	assert.False(t, c.Connect(context.Background()))
	assert.Equal(t, stage.StateDisconnected, c.State())
	assert.ErrorIs(t, c.LastError(), stage.ErrConnection)
	assert.False(t, c.IsConnected())
}

func TestConnectTimeoutEntersError(t *testing.T) {
	b := sim.New(sim.Config{ConnectDelay: 5 * time.Second})
	c := newController(t, b, Options{ConnectTimeout: 100 * time.Millisecond})

	start := time.Now()
	assert.False(t, c.Connect(context.Background()))
	assert.Less(t, time.Since(start), time.Second)

	assert.Equal(t, stage.StateError, c.State())
	assert.ErrorIs(t, c.LastError(), stage.ErrTimeout)
	assert.ErrorIs(t, c.ErrorReason(), stage.ErrTimeout)
}

func TestConnectRetries(t *testing.T) {
	b := mocks.NewMockBackend(t)
	sess := &nopSession{}
	b.EXPECT().Connect(mock.Anything, "COM3").Return(nil, errors.New("port busy")).Twice()
	b.EXPECT().Connect(mock.Anything, "COM3").Return(sess, nil).Once()
	b.EXPECT().ReadPosition(mock.Anything, sess).Return(stage.Reading{Position: 5}, nil).Maybe()
	b.EXPECT().Stop(mock.Anything, sess).Return(nil).Maybe()

	c := newControllerOn(t, b, "COM3", Options{
		ConnectAttempts: 3,
		Backoff:         retry.Config{Initial: time.Millisecond, Max: time.Millisecond},
	})

	require.True(t, c.Connect(context.Background()), "connect: %v", c.LastError())
	assert.Equal(t, stage.StateConnected, c.State())
}

func TestConnectAutoPortUsesFirstDiscovered(t *testing.T) {
	d := mocks.NewMockDiscoverer(t)
	d.EXPECT().Discover(mock.Anything).Return([]stage.DeviceInfo{
		{Port: sim.DefaultPort, Name: "first"},
		{Port: sim.PortPrefix + "1", Name: "second"},
	}, nil).Once()

	c := newControllerOn(t, sim.New(sim.Config{}), stage.PortAuto, Options{Discovery: d})
	require.True(t, c.Connect(context.Background()))
	assert.Equal(t, sim.DefaultPort, c.Port())
}

func TestConnectAutoPortNoDevices(t *testing.T) {
	d := mocks.NewMockDiscoverer(t)
	d.EXPECT().Discover(mock.Anything).Return(nil, nil).Once()

	c := newControllerOn(t, sim.New(sim.Config{}), stage.PortAuto, Options{Discovery: d})
	assert.False(t, c.Connect(context.Background()))
	assert.Equal(t, stage.StateDisconnected, c.State())
	assert.ErrorIs(t, c.LastError(), stage.ErrConnection)
	assert.ErrorIs(t, c.LastError(), discovery.ErrNoDevices)
}

func TestConnectAutoPortWithoutDiscovery(t *testing.T) {
	c := newControllerOn(t, sim.New(sim.Config{}), stage.PortAuto, Options{})
	assert.False(t, c.Connect(context.Background()))
	assert.ErrorIs(t, c.LastError(), stage.ErrConnection)
}

func TestDisconnectReleasesSession(t *testing.T) {
	b := sim.New(sim.Config{})
	c := connected(t, b, Options{})
	session := c.session.(*sim.Session)

	c.Disconnect()
	assert.Equal(t, stage.StateDisconnected, c.State())
	assert.True(t, session.Closed())
	assert.False(t, c.IsConnected())
	assert.False(t, c.Status().Known)

	reads := b.Reads()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, reads, b.Reads(), "sampling stopped")
}

func TestMoveToClampsTarget(t *testing.T) {
	b := mocks.NewMockBackend(t)
	sess := &nopSession{}
	b.EXPECT().Connect(mock.Anything, "COM3").Return(sess, nil).Once()
	b.EXPECT().ReadPosition(mock.Anything, sess).Return(stage.Reading{Position: 50}, nil).Maybe()
	b.EXPECT().MoveAbsolute(mock.Anything, sess, 100.0).Return(nil).Once()
	b.EXPECT().Stop(mock.Anything, sess).Return(nil).Maybe()

	events := &eventLog{}
	c := newControllerOn(t, b, "COM3", Options{Events: events})
	require.True(t, c.Connect(context.Background()))

	assert.True(t, c.MoveTo(context.Background(), 200))

	clamps := events.clamps()
	require.Len(t, clamps, 1)
	assert.Equal(t, "position", clamps[0].Field)
	assert.Equal(t, 200.0, clamps[0].Requested)
	assert.Equal(t, 100.0, clamps[0].Applied)

	cmds := events.commands(log.OpMoveTo, log.OriginCaller)
	require.Len(t, cmds, 1)
	assert.True(t, cmds[0].Success)
	assert.Equal(t, 200.0, *cmds[0].Requested)
	assert.Equal(t, 100.0, *cmds[0].Applied)
}

func TestMoveToSimulatedClamp(t *testing.T) {
	b := sim.New(sim.Config{MoveSpeed: 1000})
	c := connected(t, b, Options{})

	assert.True(t, c.MoveTo(context.Background(), -20))
	moves := b.CallsOf(sim.OpMove)
	require.Len(t, moves, 1)
	assert.Equal(t, 0.0, moves[0].Value)
}

func TestMoveSettles(t *testing.T) {
	b := sim.New(sim.Config{MoveSpeed: 200, Homed: true})
	c := connected(t, b, Options{})

	require.True(t, c.MoveTo(context.Background(), 20))
	waitState(t, c, stage.StateHomed)
	assert.InDelta(t, 20, c.Position(), 1e-6)
	assert.False(t, c.IsMoving())
}

func TestMoveToRejectsNonFinite(t *testing.T) {
	b := sim.New(sim.Config{})
	c := connected(t, b, Options{})

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		assert.False(t, c.MoveTo(context.Background(), v))
		assert.ErrorIs(t, c.LastError(), stage.ErrInvalidArgument)
		assert.False(t, c.SetVelocity(context.Background(), v))
		assert.ErrorIs(t, c.LastError(), stage.ErrInvalidArgument)
	}
	assert.Empty(t, b.CallsOf(sim.OpMove))
	assert.Empty(t, b.CallsOf(sim.OpVelocity))
	assert.Equal(t, stage.StateConnected, c.State())
}

func TestMotionRequiresConnection(t *testing.T) {
	c := newController(t, sim.New(sim.Config{}), Options{})

	assert.False(t, c.MoveTo(context.Background(), 10))
	assert.ErrorIs(t, c.LastError(), stage.ErrNotConnected)
	assert.False(t, c.SetVelocity(context.Background(), 1))
	assert.ErrorIs(t, c.LastError(), stage.ErrNotConnected)
	assert.False(t, c.Home(context.Background()))
	assert.ErrorIs(t, c.LastError(), stage.ErrNotConnected)
	assert.Equal(t, stage.StateDisconnected, c.State())
}

func TestRequireHomedForMotion(t *testing.T) {
	b := sim.New(sim.Config{MoveSpeed: 1000})
	c := connected(t, b, Options{RequireHomedForMotion: true})

	assert.False(t, c.MoveTo(context.Background(), 10))
	assert.ErrorIs(t, c.LastError(), stage.ErrInvalidState)

	require.True(t, c.Home(context.Background()))
	assert.True(t, c.MoveTo(context.Background(), 10))
}

func TestSetVelocityClampsMagnitude(t *testing.T) {
	b := sim.New(sim.Config{Start: 50})
	c := connected(t, b, Options{})
	ctx := context.Background()

	require.True(t, c.SetVelocity(ctx, 50))
	assert.Equal(t, stage.StateMoving, c.State())
	require.True(t, c.SetVelocity(ctx, -50))

	vels := b.CallsOf(sim.OpVelocity)
	require.Len(t, vels, 2)
	assert.Equal(t, 10.0, vels[0].Value)
	assert.Equal(t, -10.0, vels[1].Value)
}

func TestSetVelocityZeroStops(t *testing.T) {
	b := sim.New(sim.Config{Start: 50})
	events := &eventLog{}
	c := connected(t, b, Options{Events: events})
	ctx := context.Background()

	require.True(t, c.SetVelocity(ctx, 2))
	require.True(t, c.SetVelocity(ctx, 0))

	assert.Equal(t, stage.StateConnected, c.State())
	assert.Len(t, b.CallsOf(sim.OpStop), 1)
	assert.Len(t, b.CallsOf(sim.OpVelocity), 1)
	assert.Len(t, events.commands(log.OpStop, log.OriginCaller), 1)
}

func TestSetVelocityAtLimitClampsToZero(t *testing.T) {
	b := sim.New(sim.Config{Start: 100})
	events := &eventLog{}
	c := connected(t, b, Options{Events: events})
	ctx := context.Background()

	assert.True(t, c.SetVelocity(ctx, 5))
	assert.Empty(t, b.CallsOf(sim.OpVelocity), "no push past the limit")
	assert.NotEqual(t, stage.StateMoving, c.State())

	clamps := events.clamps()
	require.Len(t, clamps, 1)
	assert.Equal(t, "velocity", clamps[0].Field)
	assert.Equal(t, 0.0, clamps[0].Applied)

	// Moving away from the limit is allowed.
	assert.True(t, c.SetVelocity(ctx, -5))
	vels := b.CallsOf(sim.OpVelocity)
	require.Len(t, vels, 1)
	assert.Equal(t, -5.0, vels[0].Value)
}

func TestHome(t *testing.T) {
	b := sim.New(sim.Config{Start: 30, HomeDuration: 20 * time.Millisecond})
	c := connected(t, b, Options{})

	require.True(t, c.Home(context.Background()))
	assert.Equal(t, stage.StateHomed, c.State())
	assert.True(t, c.IsHomed())
	require.Eventually(t, func() bool {
		s := c.Status()
		return s.IsHomed && s.Position == 0
	}, waitFor, tick)
}

func TestHomedMatchesStatus(t *testing.T) {
	b := sim.New(sim.Config{Start: 30, HomeDuration: 50 * time.Millisecond})
	cfg, err := stage.NewConfig(sim.DefaultPort, stage.Limits{Min: 0, Max: 100}, 10, 2)
	require.NoError(t, err)
	c, err := New(b, cfg, Options{})
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	require.True(t, c.Connect(context.Background()))
	require.Eventually(t, func() bool { return c.Status().Known }, waitFor, tick)

	result := make(chan bool, 1)
	go func() { result <- c.Home(context.Background()) }()
	waitState(t, c, stage.StateHoming)
	assert.False(t, c.IsHomed())
	assert.False(t, c.Status().IsHomed)

	require.True(t, <-result)
	assert.True(t, c.IsHomed())
	assert.True(t, c.Status().IsHomed)

	c.Disconnect()
	assert.False(t, c.IsHomed())
	assert.Equal(t, c.IsHomed(), c.Status().IsHomed)
}

func TestHomeFailureEntersError(t *testing.T) {
	b := sim.New(sim.Config{})
	b.Fail(sim.OpHome, errors.New("limit switch"))
	c := connected(t, b, Options{})

	assert.False(t, c.Home(context.Background()))
	assert.Equal(t, stage.StateError, c.State())
	assert.ErrorIs(t, c.LastError(), stage.ErrBackend)
	assert.False(t, c.IsHomed())
}

func TestHomeTimeoutEntersError(t *testing.T) {
	b := sim.New(sim.Config{HomeDuration: 5 * time.Second})
	c := connected(t, b, Options{HomeTimeout: 50 * time.Millisecond})

	start := time.Now()
	assert.False(t, c.Home(context.Background()))
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, stage.StateError, c.State())
	assert.ErrorIs(t, c.ErrorReason(), stage.ErrTimeout)
}

func TestHomeRejectedWhileMoving(t *testing.T) {
	c := connected(t, sim.New(sim.Config{Start: 50}), Options{})
	require.True(t, c.SetVelocity(context.Background(), 1))

	assert.False(t, c.Home(context.Background()))
	assert.ErrorIs(t, c.LastError(), stage.ErrInvalidState)
	assert.Equal(t, stage.StateMoving, c.State())
}

func TestMotionRejectedWhileHoming(t *testing.T) {
	b := sim.New(sim.Config{HomeDuration: 5 * time.Second})
	c := connected(t, b, Options{})

	go c.Home(context.Background())
	waitState(t, c, stage.StateHoming)

	start := time.Now()
	assert.False(t, c.MoveTo(context.Background(), 10))
	assert.ErrorIs(t, c.LastError(), stage.ErrInvalidState)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	assert.True(t, c.Stop(context.Background()))
}

// stopScenario brings a controller into a state before Stop is issued.
type stopScenario struct {
	name  string
	setup func(t *testing.T, b *sim.Backend, c *Controller)
	want  stage.State
}

func TestStopFromEveryState(t *testing.T) {
	ctx := context.Background()
	tests := []stopScenario{
		{
			name:  "Disconnected",
			setup: func(*testing.T, *sim.Backend, *Controller) {},
			want:  stage.StateDisconnected,
		},
		{
			name: "Connected",
			setup: func(t *testing.T, _ *sim.Backend, c *Controller) {
				require.True(t, c.Connect(ctx))
			},
			want: stage.StateConnected,
		},
		{
			name: "Homed",
			setup: func(t *testing.T, _ *sim.Backend, c *Controller) {
				require.True(t, c.Connect(ctx))
				require.True(t, c.Home(ctx))
			},
			want: stage.StateHomed,
		},
		{
			name: "MovingVelocity",
			setup: func(t *testing.T, _ *sim.Backend, c *Controller) {
				require.True(t, c.Connect(ctx))
				require.True(t, c.SetVelocity(ctx, 3))
			},
			want: stage.StateConnected,
		},
		{
			name: "MovingHomed",
			setup: func(t *testing.T, _ *sim.Backend, c *Controller) {
				require.True(t, c.Connect(ctx))
				require.True(t, c.Home(ctx))
				require.True(t, c.MoveTo(ctx, 90))
			},
			want: stage.StateHomed,
		},
		{
			name: "Error",
			setup: func(t *testing.T, b *sim.Backend, c *Controller) {
				require.True(t, c.Connect(ctx))
				b.Fail(sim.OpRead, errors.New("bus"))
				waitState(t, c, stage.StateError)
			},
			want: stage.StateError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sim.New(sim.Config{Start: 50, MoveSpeed: 1})
			c := newController(t, b, Options{FailureBudget: 3})
			tt.setup(t, b, c)

			assert.True(t, c.Stop(ctx))
			assert.Equal(t, tt.want, c.State())

			time.Sleep(30 * time.Millisecond)
			assert.NotEqual(t, stage.StateMoving, c.State())
		})
	}
}

func TestStopAbortsHoming(t *testing.T) {
	b := sim.New(sim.Config{HomeDuration: 5 * time.Second})
	c := connected(t, b, Options{})

	result := make(chan bool, 1)
	go func() { result <- c.Home(context.Background()) }()
	waitState(t, c, stage.StateHoming)

	assert.True(t, c.Stop(context.Background()))
	select {
	case ok := <-result:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("home not aborted")
	}

	assert.Equal(t, stage.StateConnected, c.State())
	assert.ErrorIs(t, c.LastError(), stage.ErrAborted)
	assert.False(t, c.IsHomed())
	assert.Empty(t, b.CallsOf(sim.OpHome), "aborted home never completed")
}

func TestStopAbortsQueuedHome(t *testing.T) {
	b := sim.New(sim.Config{HomeDuration: 5 * time.Second})
	c := connected(t, b, Options{})

	results := make(chan bool, 2)
	go func() { results <- c.Home(context.Background()) }()
	waitState(t, c, stage.StateHoming)
	go func() { results <- c.Home(context.Background()) }()
	// Give the second home time to queue on the command lock.
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	assert.True(t, c.Stop(context.Background()))
	for range 2 {
		select {
		case ok := <-results:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("home still running after stop")
		}
	}
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, stage.StateConnected, c.State())
	assert.ErrorIs(t, c.LastError(), stage.ErrAborted)
	assert.Empty(t, b.CallsOf(sim.OpHome))
}

// stuckHome ignores ctx while homing and counts overlapping commands.
type stuckHome struct {
	*sim.Backend
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
	stops   atomic.Int32
}

func (b *stuckHome) enter() {
	n := b.active.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			return
		}
	}
}

func (b *stuckHome) Home(context.Context, stage.Session) error {
	b.enter()
	defer b.active.Add(-1)
	<-b.release
	return nil
}

func (b *stuckHome) Stop(ctx context.Context, s stage.Session) error {
	b.enter()
	defer b.active.Add(-1)
	b.stops.Add(1)
	return b.Backend.Stop(ctx, s)
}

func TestAbandonedHomeBlocksNextCommand(t *testing.T) {
	b := &stuckHome{Backend: sim.New(sim.Config{}), release: make(chan struct{})}
	c := connected(t, b, Options{HomeTimeout: 30 * time.Millisecond})

	assert.False(t, c.Home(context.Background()))
	assert.ErrorIs(t, c.ErrorReason(), stage.ErrTimeout)

	stopped := make(chan bool, 1)
	go func() { stopped <- c.Stop(context.Background()) }()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, b.stops.Load(), "stop reached the backend while home was running")

	close(b.release)
	select {
	case ok := <-stopped:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stop did not run after home returned")
	}
	assert.Equal(t, int32(1), b.stops.Load())
	assert.Equal(t, int32(1), b.peak.Load())
}

func TestCommandTimesOutBehindAbandonedHome(t *testing.T) {
	b := &stuckHome{Backend: sim.New(sim.Config{}), release: make(chan struct{})}
	t.Cleanup(func() { close(b.release) })
	c := connected(t, b, Options{HomeTimeout: 30 * time.Millisecond, CommandTimeout: 50 * time.Millisecond})

	assert.False(t, c.Home(context.Background()))

	start := time.Now()
	assert.False(t, c.Stop(context.Background()))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.ErrorIs(t, c.LastError(), stage.ErrTimeout)
	assert.Zero(t, b.stops.Load())
	assert.Equal(t, stage.StateError, c.State())
}

func TestStopFailureEntersError(t *testing.T) {
	b := sim.New(sim.Config{Start: 50})
	c := connected(t, b, Options{})
	require.True(t, c.SetVelocity(context.Background(), 1))

	b.Fail(sim.OpStop, errors.New("no reply"))
	assert.False(t, c.Stop(context.Background()))
	assert.Equal(t, stage.StateError, c.State())
	assert.ErrorIs(t, c.ErrorReason(), stage.ErrBackend)
}

func TestHomeRecoversFromError(t *testing.T) {
	b := sim.New(sim.Config{Start: 50})
	c := connected(t, b, Options{FailureBudget: 3})

	b.Fail(sim.OpRead, errors.New("bus"))
	waitState(t, c, stage.StateError)
	assert.ErrorIs(t, c.ErrorReason(), stage.ErrBackend)
	require.Eventually(t, func() bool { return c.SampleRate() == 0 }, waitFor, tick, "sampler stopped after fault")

	b.Fail(sim.OpRead, nil)
	require.True(t, c.Home(context.Background()))
	assert.Equal(t, stage.StateHomed, c.State())
	assert.Nil(t, c.ErrorReason())
	assert.Positive(t, c.SampleRate())
}

func TestReconnectFromError(t *testing.T) {
	b := sim.New(sim.Config{Start: 50})
	c := connected(t, b, Options{FailureBudget: 3})
	first := c.SessionID()
	session := c.session.(*sim.Session)

	b.Fail(sim.OpRead, errors.New("bus"))
	waitState(t, c, stage.StateError)
	b.Fail(sim.OpRead, nil)

	require.True(t, c.Connect(context.Background()))
	assert.Equal(t, stage.StateConnected, c.State())
	assert.NotEqual(t, first, c.SessionID())
	assert.True(t, session.Closed())
	assert.Len(t, b.CallsOf(sim.OpConnect), 2)
}
