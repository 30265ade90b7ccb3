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

// Package pool schedules connd.Driver batches onto a bounded set of worker
// goroutines.
//
// The single-consumer-per-connection invariant a Driver depends on (never
// touched by two goroutines at once) is enforced entirely here, not inside
// Driver itself: Driver never locks around its own drain, since a lock
// there would deadlock a concurrent Interrupt call. Instead the Pool tracks,
// per driver, whether a worker is currently draining it, and simply
// declines to schedule a second one while that holds.
package pool

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"lab.nexedi.com/kirr/connd"
	"lab.nexedi.com/kirr/connd/wire"
)

// Pool bounds how many connections can be actively draining at once. It is
// safe for concurrent use by any number of producers calling Schedule.
type Pool struct {
	slots chan struct{}
	g     *errgroup.Group

	mu     sync.Mutex
	active map[*connd.Driver]bool
}

// New returns a Pool that allows at most size connections to drain
// concurrently. size must be positive.
func New(size int) *Pool {
	if size <= 0 {
		panic("pool: size must be positive")
	}
	return &Pool{
		slots:  make(chan struct{}, size),
		g:      &errgroup.Group{},
		active: make(map[*connd.Driver]bool),
	}
}

// Wait blocks until every drive currently in flight has returned. It never
// itself returns a non-nil error — drive never fails the group — but
// follows errgroup.Group's signature so callers can select on it uniformly
// with other shutdown waits.
func (p *Pool) Wait() error {
	return p.g.Wait()
}

// Schedule requests that d be drained. If d is already being drained by
// another worker, Schedule is a no-op: that worker will keep draining until
// d's queue is empty, picking up whatever prompted this call along the way.
// If no worker slot is free, d.HandleSchedulingError is called synchronously
// with a wire.ErrNoWorkerAvailable cause instead of blocking the caller.
func (p *Pool) Schedule(ctx context.Context, d *connd.Driver) {
	p.mu.Lock()
	if p.active[d] {
		p.mu.Unlock()
		return
	}
	p.active[d] = true
	p.mu.Unlock()

	select {
	case p.slots <- struct{}{}:
	default:
		p.clearActive(d)
		d.HandleSchedulingError(ctx, errors.Wrap(wire.ErrNoWorkerAvailable,
			"pool: no free worker slot"))
		return
	}

	p.g.Go(func() error {
		p.drive(ctx, d)
		return nil
	})
}

// drive runs on a dedicated goroutine for as long as d keeps producing
// work, then relinquishes both its worker slot and its active marker.
func (p *Pool) drive(ctx context.Context, d *connd.Driver) {
	defer func() { <-p.slots }()

	for {
		if !d.ProcessNextBatch(ctx) {
			p.clearActive(d)
			return
		}
		if d.HasPendingJobs() {
			continue
		}

		// Clear active and re-check under the same lock: a job
		// offered between the check above and this point must not
		// be left stranded with no worker aware of it.
		p.mu.Lock()
		if d.HasPendingJobs() {
			p.mu.Unlock()
			continue
		}
		delete(p.active, d)
		p.mu.Unlock()
		return
	}
}

func (p *Pool) clearActive(d *connd.Driver) {
	p.mu.Lock()
	delete(p.active, d)
	p.mu.Unlock()
}
