// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/runtime-insights/insights-agent/lib/agenterr"
	"github.com/runtime-insights/insights-agent/lib/clock"
	"github.com/runtime-insights/insights-agent/lib/delivery"
	"github.com/runtime-insights/insights-agent/lib/fingerprint"
	"github.com/runtime-insights/insights-agent/lib/metrics"
	"github.com/runtime-insights/insights-agent/lib/report"
)

// Deliverer hands a named report to the transports.
// *delivery.Failover implements it.
type Deliverer interface {
	Ready(ctx context.Context) bool
	Deliver(ctx context.Context, name string, payload delivery.Payload) error
}

// FactSource produces the basic facts of a CONNECT report.
// *basic.Source implements it.
type FactSource interface {
	Facts() map[string]any
}

// Pending is the queue of identities waiting for an UPDATE report.
// *discovery.Queue implements it.
type Pending interface {
	Len() int
	Drain() []fingerprint.Identity
}

// Config holds the scheduling settings.
type Config struct {
	// OptOut disables reporting: Generate returns an OptOut error.
	OptOut bool

	ConnectPeriod time.Duration
	UpdatePeriod  time.Duration

	// Classpath is the path-list fingerprinted into every CONNECT.
	// Relative entries are resolved against WorkDir.
	Classpath string
	WorkDir   string
}

// Dependencies are the collaborators the controller drives. Clock,
// Logger, Recorder and Hash default when nil.
type Dependencies struct {
	Clock      clock.Clock
	Logger     *slog.Logger
	Recorder   metrics.Recorder
	Delivery   Deliverer
	Facts      FactSource
	Identifier report.Identifier
	Queue      Pending
	Hash       *report.IdentityHash
	Reports    report.Options
}

// Controller runs the CONNECT and UPDATE schedule.
type Controller struct {
	config Config
	deps   Dependencies
	logger *slog.Logger

	mu       sync.Mutex
	started  bool
	shutdown bool
	err      error
	cancel   context.CancelFunc
	stop     chan struct{}
	done     chan struct{}
}

// New returns a controller that has not started.
func New(config Config, deps Dependencies) *Controller {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.Noop{}
	}
	if deps.Hash == nil {
		deps.Hash = report.NewIdentityHash()
	}
	if deps.Reports.Logger == nil {
		deps.Reports.Logger = deps.Logger
	}
	return &Controller{
		config: config,
		deps:   deps,
		logger: deps.Logger,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Generate starts the schedule and returns. The first CONNECT is built
// on the worker goroutine straight away. When reporting is opted out
// the controller shuts down and an OptOut error is returned. ctx
// bounds the worker: cancelling it between tasks is a clean shutdown,
// cancelling it during a delivery is fatal like any other task error.
func (c *Controller) Generate(ctx context.Context) error {
	if c.config.OptOut {
		err := agenterr.New(agenterr.OptOut, "reporting disabled by configuration")
		c.logger.Info("reporting opted out, controller shutting down")
		c.shutdownWith(err)
		return err
	}
	if c.config.ConnectPeriod <= 0 || c.config.UpdatePeriod <= 0 {
		return fmt.Errorf("connect period %v and update period %v must be positive",
			c.config.ConnectPeriod, c.config.UpdatePeriod)
	}

	c.mu.Lock()
	if c.shutdown {
		c.mu.Unlock()
		return errors.New("controller is shut down")
	}
	if c.started {
		c.mu.Unlock()
		return errors.New("controller already started")
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	go c.run(ctx)
	return nil
}

// Shutdown stops the schedule permanently. A delivery in progress is
// cancelled. Safe to call more than once and before Generate.
func (c *Controller) Shutdown() { c.shutdownWith(nil) }

// IsShutdown reports whether the controller has been shut down.
func (c *Controller) IsShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shutdown
}

// Done is closed once the worker has exited, or at shutdown when it
// never started.
func (c *Controller) Done() <-chan struct{} { return c.done }

// Err returns the error that shut the controller down, nil for a
// requested shutdown.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) shutdownWith(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shutdown {
		return
	}
	c.shutdown = true
	c.err = cause
	close(c.stop)
	if c.cancel != nil {
		c.cancel()
	}
	if !c.started {
		close(c.done)
	}
}

// run is the single worker executing both tasks.
func (c *Controller) run(ctx context.Context) {
	defer close(c.done)

	connectTicker := c.deps.Clock.NewTicker(c.config.ConnectPeriod)
	defer connectTicker.Stop()
	updateTicker := c.deps.Clock.NewTicker(c.config.UpdatePeriod)
	defer updateTicker.Stop()

	if !c.execute(ctx, "connect", c.connect) {
		return
	}
	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			c.shutdownWith(nil)
			return
		case <-connectTicker.C:
			if !c.execute(ctx, "connect", c.connect) {
				return
			}
		case <-updateTicker.C:
			if !c.execute(ctx, "update", c.update) {
				return
			}
		}
	}
}

// execute runs one task and applies the fatal rule. It returns false
// when the worker must exit.
func (c *Controller) execute(ctx context.Context, task string, run func(context.Context) error) bool {
	err := run(ctx)
	if err == nil {
		return !c.IsShutdown()
	}
	if c.IsShutdown() {
		// Shutdown cancelled the delivery; the cause is already set.
		return false
	}
	c.logger.Error("report task failed, controller shutting down",
		"task", task,
		"error", err,
	)
	c.shutdownWith(err)
	return false
}

// connect builds and delivers a CONNECT report. The identity hash is
// fixed by the first build.
func (c *Controller) connect(ctx context.Context) error {
	if !c.deps.Delivery.Ready(ctx) {
		c.logger.Debug("no transport ready, skipping connect")
		return nil
	}

	jars := report.Classpath(c.config.Classpath, c.config.WorkDir, c.deps.Identifier, c.logger)
	connect := report.NewConnect(c.deps.Reports, c.deps.Facts.Facts(), jars)
	hash, err := c.deps.Hash.Ensure(connect)
	if err != nil {
		return fmt.Errorf("computing identity hash: %w", err)
	}
	return c.deliver(ctx, connect, report.Connect.Name(hash))
}

// update drains the queue into an UPDATE report. With no ready
// transport, no identity hash or nothing queued it does nothing and
// the queue keeps accumulating.
func (c *Controller) update(ctx context.Context) error {
	if c.deps.Queue.Len() == 0 {
		return nil
	}
	hash, ok := c.deps.Hash.Get()
	if !ok {
		c.logger.Debug("identity hash not yet computed, deferring update")
		return nil
	}
	if !c.deps.Delivery.Ready(ctx) {
		c.logger.Debug("no transport ready, deferring update", "queued", c.deps.Queue.Len())
		return nil
	}

	jars := c.deps.Queue.Drain()
	c.deps.Recorder.SetQueueDepth(c.deps.Queue.Len())
	if len(jars) == 0 {
		return nil
	}
	return c.deliver(ctx, report.NewUpdate(c.deps.Reports, hash, jars), report.Update.Name(hash))
}

func (c *Controller) deliver(ctx context.Context, payload *report.Report, name string) error {
	kind := payload.Kind().String()
	if err := c.deps.Delivery.Deliver(ctx, name, payload); err != nil {
		c.deps.Recorder.ReportFailed(kind)
		return fmt.Errorf("delivering %s report: %w", kind, err)
	}
	c.deps.Recorder.ReportDelivered(kind)
	c.logger.Info("report delivered",
		"report", name,
		"archives", len(payload.Jars()),
	)
	return nil
}
