package controller

import (
	"context"

	"github.com/hdrlab/linstage/pkg/log"
	"github.com/hdrlab/linstage/pkg/sampler"
	"github.com/hdrlab/linstage/pkg/stage"
)

type requestKind uint8

const (
	requestBoundary requestKind = iota
	requestSettled
	requestFault
)

func (k requestKind) String() string {
	switch k {
	case requestBoundary:
		return "boundary"
	case requestSettled:
		return "settled"
	case requestFault:
		return "fault"
	default:
		return "unknown"
	}
}

// request is raised by the sampler and executed on the command path.
type request struct {
	kind  requestKind
	epoch uint64
	gen   uint64
	snap  stage.Snapshot
	err   error
}

// supervisor executes sampler requests for one session.
type supervisor struct {
	requests chan request
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

const requestQueueSize = 8

func (c *Controller) startSupervisor() *supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	sup := &supervisor{
		requests: make(chan request, requestQueueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go c.supervise(sup)
	return sup
}

// stop cancels the supervisor and waits for it. Safe with cmd held: a
// supervisor waiting for the lock gives up on cancellation.
func (s *supervisor) stop() {
	s.cancel()
	<-s.done
}

// send queues r. It blocks while the queue is full so safety requests are
// never dropped, and gives up once the supervisor is stopped.
func (s *supervisor) send(r request) {
	select {
	case s.requests <- r:
	case <-s.ctx.Done():
	}
}

func (c *Controller) supervise(sup *supervisor) {
	defer close(sup.done)
	for {
		select {
		case <-sup.ctx.Done():
			return
		case r := <-sup.requests:
			if err := c.lock(sup.ctx); err != nil {
				return
			}
			c.handle(r)
			c.unlock()
		}
	}
}

// samplerCallbacks wires a sampler to sup for session epoch.
func (c *Controller) samplerCallbacks(sup *supervisor, epoch uint64, opts *sampler.Options) {
	opts.OnBoundary = func(gen uint64, snap stage.Snapshot) {
		if c.boundaryPending.Swap(gen) == gen {
			return
		}
		sup.send(request{kind: requestBoundary, epoch: epoch, gen: gen, snap: snap})
	}
	opts.OnSettled = func(gen uint64) {
		sup.send(request{kind: requestSettled, epoch: epoch, gen: gen})
	}
	opts.OnFault = func(err error) {
		sup.send(request{kind: requestFault, epoch: epoch, err: err})
	}
}

// handle executes r. Caller holds cmd.
func (c *Controller) handle(r request) {
	if r.kind == requestBoundary {
		defer c.boundaryPending.CompareAndSwap(r.gen, 0)
	}

	c.stateMu.RLock()
	state, epoch, motion, session := c.state, c.epoch, c.motion, c.session
	c.stateMu.RUnlock()

	if r.epoch != epoch || session == nil {
		c.logger.Debug("discarding request from previous session", "kind", r.kind)
		return
	}

	switch r.kind {
	case requestBoundary:
		if state != stage.StateMoving || motion.Mode != sampler.ModeVelocity || motion.Generation != r.gen {
			c.logger.Debug("discarding stale boundary request", "gen", r.gen, "current", motion.Generation)
			return
		}
		c.boundaryStop(session, r.snap)

	case requestSettled:
		if state != stage.StateMoving || motion.Generation != r.gen {
			return
		}
		c.clearMotion()
		c.settle("motion complete")

	case requestFault:
		c.sampleFault(session, r.err)
	}
}

// boundaryStop halts velocity motion that reached a limit. Caller holds cmd.
func (c *Controller) boundaryStop(session stage.Session, snap stage.Snapshot) {
	c.logger.Warn("boundary stop", "position", snap.Position, "seq", snap.Seq)

	c.clearMotion()
	c.setState(stage.StateStopping, "boundary stop")

	cmd := newCommand(log.OpStop, log.OriginBoundary)
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CommandTimeout)
	defer cancel()
	err := classify(run(ctx, c.inflight, func(ctx context.Context) error {
		return c.backend.Stop(ctx, session)
	}), stage.ErrBackend)
	c.done(cmd, err)

	if err != nil {
		c.fault(err, "boundary stop failed")
		return
	}
	c.settle("boundary stop")
}

// sampleFault handles an exhausted sampler failure budget. Caller holds cmd.
func (c *Controller) sampleFault(session stage.Session, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CommandTimeout)
	defer cancel()

	cmd := newCommand(log.OpStop, log.OriginFault)
	stopErr := classify(run(ctx, c.inflight, func(ctx context.Context) error {
		return c.backend.Stop(ctx, session)
	}), stage.ErrBackend)
	c.done(cmd, stopErr)

	c.fault(err, "sampler fault")
}
