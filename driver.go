// Copyright (C) 2017-2020  Nexedi SA and Contributors.
//                          Kirill Smelkov <kirr@nexedi.com>
//
// This program is free software: you can Use, Study, Modify and Redistribute
// it under the terms of the GNU General Public License version 3, or (at your
// option) any later version, as published by the Free Software Foundation.
//
// You can also Link and Combine this program with other software covered by
// the terms of any of the Free Software licenses or any of the Open Source
// Initiative approved licenses and Convey the resulting work. Corresponding
// source of such a combination shall include the source code for all other
// software used.
//
// This program is distributed WITHOUT ANY WARRANTY; without even the implied
// warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
//
// See COPYING file for full licensing terms.

// Package connd implements the per-connection execution driver of a
// wire-protocol database server: it sits between a Channel and an opaque
// protocol StateMachine, accepts Jobs from a decoder, schedules their
// execution on a shared worker pool via ProcessNextBatch, and guarantees
// the state machine is ever touched by at most one goroutine at a time.
package connd

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"

	"lab.nexedi.com/kirr/connd/internal/log"
	"lab.nexedi.com/kirr/connd/wire"
)

// Driver is the connection's state machine: enqueue, batched drain,
// fatal-error handling, scheduling-error recovery, and shutdown.
//
// A Driver is never pinned to a goroutine. A worker pool calls
// ProcessNextBatch whenever this connection has pending work; by external
// contract (enforced by the pool, see package pool) at most one goroutine
// at a time does so for a given Driver. The Driver itself never locks
// around that contract: taking a lock here would deadlock Interrupt,
// which is meant to be callable from any goroutine while a batch is
// draining.
type Driver struct {
	id string

	channel Channel
	output  wire.PackOutput
	machine wire.StateMachine

	listener     LifecycleListener
	queueMonitor QueueMonitor
	metrics      MetricsEmitter
	clock        Clock

	ilog *log.Logger
	ulog *log.Logger

	maxBatchSize           int
	idleValidationInterval time.Duration

	queue *JobQueue
	flags *flags
}

// Factory constructs Drivers sharing the same process-wide collaborators,
// mirroring the Bolt connection driver's BoltConnectionFactory: a
// connection is constructed by a factory bound to an accepted channel.
type Factory struct {
	Listener     LifecycleListener
	QueueMonitor QueueMonitor
	Metrics      MetricsEmitter
	Clock        Clock
	Config       Config
}

// NewDriver constructs a Driver for a freshly accepted channel. Metrics
// must not be nil; Listener, QueueMonitor and Clock may be.
func (f *Factory) NewDriver(channel Channel, output wire.PackOutput, machine wire.StateMachine) *Driver {
	if f.Metrics == nil {
		panic("connd: Factory.Metrics must not be nil")
	}

	clock := f.Clock
	if clock == nil {
		clock = SystemClock
	}

	cfg := f.Config
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}
	if cfg.IdleValidationInterval <= 0 {
		cfg.IdleValidationInterval = DefaultIdleValidationInterval
	}

	return &Driver{
		id:                     channel.ID(),
		channel:                channel,
		output:                 output,
		machine:                machine,
		listener:               f.Listener,
		queueMonitor:           f.QueueMonitor,
		metrics:                f.Metrics,
		clock:                  clock,
		ilog:                   log.NewInternal(),
		ulog:                   log.NewUser(),
		maxBatchSize:           cfg.MaxBatchSize,
		idleValidationInterval: cfg.IdleValidationInterval,
		queue:                  NewJobQueue(),
		flags:                  newFlags(),
	}
}

// ID returns the stable identifier assigned at construction.
func (d *Driver) ID() string { return d.id }

// Idle is true exactly when no drain is in progress and the queue is
// empty — the composite "nothing is happening here" test external
// sweepers use.
func (d *Driver) Idle() bool {
	return d.flags.isIdle() && d.queue.Empty()
}

// HasPendingJobs reports whether any job is currently queued.
func (d *Driver) HasPendingJobs() bool {
	return !d.queue.Empty()
}

func (d *Driver) LocalAddr() net.Addr     { return d.channel.LocalAddr() }
func (d *Driver) RemoteAddr() net.Addr    { return d.channel.RemoteAddr() }
func (d *Driver) Channel() Channel        { return d.channel }
func (d *Driver) Output() wire.PackOutput { return d.output }

// Start notifies the lifecycle listener of creation and the metrics
// emitter of connection-opened. Callers invoke it exactly once;
// idempotence is not required.
func (d *Driver) Start(ctx context.Context) {
	d.notifyCreated()
	d.metrics.ConnectionOpened()
}

// Enqueue records a receive timestamp, wraps job with timing
// instrumentation, and appends it to the queue. Never blocks, never fails.
func (d *Driver) Enqueue(ctx context.Context, job Job) {
	d.metrics.MessageReceived()
	queuedAt := d.clock.Now()

	wrapped := JobFunc(func(ctx context.Context, machine wire.StateMachine) error {
		queueTime := d.clock.Now().Sub(queuedAt)
		d.metrics.MessageProcessingStarted(queueTime)

		if err := job.Perform(ctx, machine); err != nil {
			d.metrics.MessageProcessingFailed()
			return err
		}

		processingTime := d.clock.Now().Sub(queuedAt) - queueTime
		d.metrics.MessageProcessingCompleted(processingTime)
		return nil
	})

	d.enqueueInternal(wrapped)
}

func (d *Driver) enqueueInternal(job Job) {
	d.queue.Offer(job)
	d.notifyEnqueued(job)
}

// ProcessNextBatch is the single entry point the worker pool uses. It
// drains and executes up to MaxBatchSize jobs and returns whether the
// connection is still alive.
func (d *Driver) ProcessNextBatch(ctx context.Context) bool {
	return d.processNextBatchN(ctx, d.maxBatchSize, false)
}

func (d *Driver) processNextBatchN(ctx context.Context, n int, exitIfNoJobs bool) bool {
	d.flags.setIdle(false)
	d.metrics.ConnectionActivated()
	defer func() {
		d.flags.setIdle(true)
		d.metrics.ConnectionWaiting()
	}()

	alive := d.processBatchInternal(ctx, n, exitIfNoJobs)
	if !alive {
		d.metrics.ConnectionClosed()
	}
	return alive
}

func (d *Driver) processBatchInternal(ctx context.Context, n int, exitIfNoJobs bool) bool {
	ctx = log.Runningf(ctx, "conn[%s]: batch-drain", d.id)

	if err := d.drainLoop(ctx, n, exitIfNoJobs); err != nil {
		d.handleDrainError(ctx, err)
	}

	if d.flags.willClose() {
		d.close(ctx)
	}

	return !d.flags.isClosed()
}

// drainLoop is the heart of the design: it runs round after round of
// drain-and-execute, against a single budget of n jobs shared across every
// round in this call, until the budget is exhausted, the queue goes empty,
// or shouldClose flips — then flushes the output exactly once.
//
// Two subtleties carried over from round to round:
//   - the budget is decremented by how many jobs were drained into a
//     round's batch, not by how many of them actually ran — a job that
//     errors aborts the whole call immediately, so the rest of that
//     round's batch is simply discarded, never retried: those jobs are
//     already off the queue, so no later drain runs them;
//   - the first round always runs even with an empty queue (unless
//     already closing), so a drain started with nothing pending still
//     parks in waitForJobs and periodically revalidates the open
//     transaction; only the rounds after that require the queue to still
//     have something left for this call to keep looping.
func (d *Driver) drainLoop(ctx context.Context, n int, exitIfNoJobs bool) error {
	remaining := n

	for {
		if d.flags.willClose() {
			break
		}

		batch := d.queue.DrainUpTo(remaining)
		if len(batch) == 0 && !exitIfNoJobs {
			job, err := d.waitForJobs(ctx)
			if err != nil {
				return err
			}
			if job != nil {
				batch = []Job{job}
			}
		}

		d.notifyDrained(batch)
		remaining -= len(batch)

		for len(batch) > 0 {
			job := batch[0]
			batch = batch[1:]
			if err := job.Perform(ctx, d.machine); err != nil {
				return err
			}
		}

		if remaining <= 0 || !d.HasPendingJobs() {
			break
		}
	}

	if err := d.output.Flush(); err != nil {
		return errors.Wrap(err, "flush output")
	}
	return nil
}

// waitForJobs parks the drain goroutine until either a job arrives or
// shouldClose flips. While parked it periodically calls
// ValidateTransaction so a server-side transaction timeout can be
// detected even though the client is silent.
func (d *Driver) waitForJobs(ctx context.Context) (Job, error) {
	ctx = log.Running(ctx, "wait-for-jobs")

	for !d.flags.willClose() {
		job, ok := d.queue.PollWithTimeout(d.idleValidationInterval)
		if ok {
			return job, nil
		}
		if err := d.machine.ValidateTransaction(ctx); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// handleDrainError classifies a fatal job/flush error by category and logs
// it to the appropriate channel. Every branch forces shouldClose.
func (d *Driver) handleDrainError(ctx context.Context, err error) {
	d.flags.markShouldClose()

	var auth *wire.AuthFatality
	var breach *wire.ProtocolBreach
	var interruption *wire.Interruption

	switch {
	case errors.As(err, &auth):
		if auth.IsLoggable {
			d.ulog.Warning(ctx, auth.Message)
		}

	case errors.As(err, &breach):
		d.ilog.Error(ctx, fmt.Sprintf("protocol breach detected in session %q", d.id), breach)

	case errors.As(err, &interruption) || errors.Is(err, context.Canceled):
		d.ilog.Infof(ctx, "session %q interrupted, probably due to server shutdown", d.id)

	default:
		d.ulog.Error(ctx, fmt.Sprintf("unexpected error detected in session %q", d.id), err)
	}
}

// Stop atomically initiates orderly shutdown: it marks the state machine
// for termination, then enqueues an empty sentinel job purely to wake a
// drain parked in waitForJobs so that close() runs on the draining
// goroutine. Jobs already drained into the running round still execute;
// the drain loop stops at the start of its next round, so jobs still
// queued at that point (the sentinel included) are not run.
func (d *Driver) Stop(ctx context.Context) {
	if d.flags.markShouldClose() {
		d.machine.MarkForTermination()
		d.enqueueInternal(sentinelJob)
	}
}

// Interrupt forwards to the state machine for fast cancellation of
// whatever is currently running. It never touches the queue or flags —
// callers in any goroutine may call this while a batch is draining.
func (d *Driver) Interrupt() {
	d.machine.Interrupt()
}

// HandleSchedulingError is invoked by the worker pool when it failed to
// schedule this connection at all. It classifies the cause, tells the
// state machine to fail the next response, forces a single-job drain on
// the caller's goroutine (exitIfNoJobs=true to skip the idle-validation
// park), then closes unconditionally — close() is idempotent, so this is
// safe even if the forced drain already closed the connection itself.
func (d *Driver) HandleSchedulingError(ctx context.Context, cause error) {
	if !d.flags.willClose() {
		var schedErr error
		var message string

		if wire.IsNoWorkerAvailable(cause) {
			schedErr = wire.NoThreadsAvailableError(d.id)
			message = fmt.Sprintf(
				"unable to schedule session %q for execution since there are no "+
					"available worker threads at the moment; retry later or "+
					"increase pool size", d.id)
		} else {
			schedErr = wire.UnexpectedError(d.id, cause)
			message = fmt.Sprintf("unexpected error during scheduling of session %q", d.id)
		}

		d.ilog.Error(ctx, message, cause)
		d.ulog.Error(ctx, message, cause)
		d.machine.MarkFailed(schedErr)
	}

	// This runs the scheduled job on the caller's goroutine and will
	// either send a failure response to the client or close the
	// connection and its resources (if already closing).
	d.processNextBatchN(ctx, 1, true)

	// Close directly so the client stops waiting for any more
	// responses besides the failure message.
	d.close(ctx)
}

// close is idempotent via the closed flag: closes output then machine,
// logging and swallowing any error from either so the second resource
// still gets closed and the lifecycle listener still fires exactly once.
func (d *Driver) close(ctx context.Context) {
	if !d.flags.markClosed() {
		return
	}

	if err := d.output.Close(); err != nil {
		d.ilog.Error(ctx, fmt.Sprintf("unable to close output of session %q", d.id), err)
	}

	if err := d.machine.Close(); err != nil {
		d.ilog.Error(ctx, fmt.Sprintf("unable to close state machine of session %q", d.id), err)
	}

	d.notifyClosed()
}

func (d *Driver) notifyCreated() {
	if d.listener != nil {
		d.listener.Created(d)
	}
}

func (d *Driver) notifyClosed() {
	if d.listener != nil {
		d.listener.Closed(d)
	}
}

func (d *Driver) notifyEnqueued(job Job) {
	if d.queueMonitor != nil {
		d.queueMonitor.Enqueued(d, job)
	}
}

func (d *Driver) notifyDrained(jobs []Job) {
	if d.queueMonitor != nil && len(jobs) > 0 {
		d.queueMonitor.Drained(d, jobs)
	}
}
