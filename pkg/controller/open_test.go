package controller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hdrlab/linstage/pkg/backend/sim"
	"github.com/hdrlab/linstage/pkg/stage"
)

// memStore is an in-memory ConfigStore and ConfigSource.
type memStore struct {
	mu      sync.Mutex
	cfg     stage.Config
	info    *stage.DeviceInfo
	saves   int
	loadErr error
}

func (s *memStore) Save(cfg stage.Config, info *stage.DeviceInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if info != nil {
		saved := *info
		s.info = &saved
	}
	s.saves++
	return nil
}

func (s *memStore) Load() (stage.Config, *stage.DeviceInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg, s.info, s.loadErr
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func TestConnectSavesLearnedIdentityOnce(t *testing.T) {
	store := &memStore{}
	c := newController(t, sim.New(sim.Config{}), Options{Store: store})
	ctx := context.Background()

	require.True(t, c.Connect(ctx))
	assert.Equal(t, 1, store.count())
	require.NotNil(t, store.info)
	assert.Equal(t, sim.DefaultPort, store.info.Port)
	assert.Equal(t, sim.DefaultPort, store.cfg.Port)

	c.Disconnect()
	require.True(t, c.Connect(ctx))
	assert.Equal(t, 1, store.count(), "same device is not saved again")
}

func TestConnectSavesResolvedAutoPort(t *testing.T) {
	store := &memStore{}
	b := sim.New(sim.Config{})
	c := newControllerOn(t, b, stage.PortAuto, Options{Store: store, Discovery: b})

	require.True(t, c.Connect(context.Background()))
	assert.Equal(t, sim.DefaultPort, store.cfg.Port, "store receives the chosen port")
	assert.True(t, c.Config().IsAutoPort(), "configuration itself is unchanged")
}

func TestOpen(t *testing.T) {
	c, err := Open(context.Background(), sim.New(sim.Config{}), testConfig(t, sim.DefaultPort), Options{})
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	assert.Equal(t, stage.StateConnected, c.State())
}

func TestOpenFailure(t *testing.T) {
	_, err := Open(context.Background(), sim.New(sim.Config{}), testConfig(t, "COM3"), Options{})
	assert.ErrorIs(t, err, stage.ErrConnection)

	cfg := testConfig(t, sim.DefaultPort)
	cfg.ReadingRateHz = 0
	_, err = Open(context.Background(), sim.New(sim.Config{}), cfg, Options{})
	assert.ErrorIs(t, err, stage.ErrConfig)
}

func TestFromStoreKeepsSavedIdentity(t *testing.T) {
	b := sim.New(sim.Config{})
	store := &memStore{cfg: testConfig(t, sim.DefaultPort)}

	// Learn the identity once, as a first run would.
	first, err := FromStore(context.Background(), b, store, Options{})
	require.NoError(t, err)
	first.Disconnect()
	require.Equal(t, 1, store.count())

	c, err := FromStore(context.Background(), b, store, Options{})
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)

	assert.Equal(t, 1, store.count(), "known device is not saved again")
	info, ok := c.DeviceInfo()
	require.True(t, ok)
	assert.Equal(t, *store.info, info)
}

func TestFromStoreLoadError(t *testing.T) {
	loadErr := errors.New("missing file")
	store := &memStore{loadErr: loadErr}
	_, err := FromStore(context.Background(), sim.New(sim.Config{}), store, Options{})
	assert.ErrorIs(t, err, stage.ErrConfig)
	assert.ErrorIs(t, err, loadErr)
}
