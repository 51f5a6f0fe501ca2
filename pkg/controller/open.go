package controller

import (
	"context"
	"fmt"

	"github.com/hdrlab/linstage/pkg/stage"
)

// Open creates a controller and connects it. On failure the error is the
// controller's last error and no session is left open.
func Open(ctx context.Context, backend stage.Backend, cfg stage.Config, opts Options) (*Controller, error) {
	c, err := New(backend, cfg, opts)
	if err != nil {
		return nil, err
	}
	if !c.Connect(ctx) {
		err := c.LastError()
		c.Disconnect()
		return nil, err
	}
	return c, nil
}

// FromStore loads a saved configuration from src and opens a controller
// with it. The saved device identity is kept, so reconnecting to the same
// device does not rewrite the store. If opts.Store is nil and src is also
// a ConfigStore, it is used for saving.
func FromStore(ctx context.Context, backend stage.Backend, src ConfigSource, opts Options) (*Controller, error) {
	cfg, info, err := src.Load()
	if err != nil {
		return nil, fmt.Errorf("%w: load: %w", stage.ErrConfig, err)
	}
	if opts.Store == nil {
		if store, ok := src.(ConfigStore); ok {
			opts.Store = store
		}
	}

	c, err := New(backend, cfg, opts)
	if err != nil {
		return nil, err
	}
	if info != nil {
		saved := *info
		c.info = &saved
	}
	if !c.Connect(ctx) {
		err := c.LastError()
		c.Disconnect()
		return nil, err
	}
	return c, nil
}
