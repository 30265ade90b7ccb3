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

package connd

import (
	"sync"
	"time"
)

// JobQueue is an unbounded multi-producer/single-consumer FIFO of Jobs.
//
// Offer never blocks and never fails — growth is unbounded; backpressure is
// the transport layer's problem (protocol decoders must never stall on
// enqueue). DrainUpTo removes up to n head elements in one atomic step.
// PollWithTimeout blocks the single consumer until either a job arrives or
// the timeout elapses.
//
// This mirrors the channel-based receive/send queue's single-consumer
// blocking-poll idiom, simplified to a mutex-protected slice rather than
// an intrusive linked list, because Jobs never need O(1) removal from the
// middle — only from the head, in bulk.
type JobQueue struct {
	mu   sync.Mutex
	jobs []Job

	// wake is signalled (non-blocking) whenever a job is offered, to
	// unblock a consumer parked in PollWithTimeout.
	wake chan struct{}
}

// NewJobQueue returns an empty queue.
func NewJobQueue() *JobQueue {
	return &JobQueue{wake: make(chan struct{}, 1)}
}

// Offer appends job to the tail. Safe to call from any number of goroutines
// concurrently.
func (q *JobQueue) Offer(job Job) {
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Len reports the number of jobs currently queued.
func (q *JobQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Empty reports whether the queue currently holds no jobs.
func (q *JobQueue) Empty() bool {
	return q.Len() == 0
}

// DrainUpTo removes up to n jobs from the head and returns them as a new
// slice (nil if n <= 0 or the queue had nothing to give). The removal
// is atomic with respect to other producers: a caller either sees a job or
// doesn't, there is no half-drained state observable from outside.
func (q *JobQueue) DrainUpTo(n int) []Job {
	if n <= 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil
	}
	if n > len(q.jobs) {
		n = len(q.jobs)
	}

	batch := make([]Job, n)
	copy(batch, q.jobs[:n])
	q.jobs = q.jobs[n:]
	return batch
}

// PollWithTimeout waits up to d for a job to be offered. It returns the
// job and true, or nil and false if the timeout elapsed first.
func (q *JobQueue) PollWithTimeout(d time.Duration) (Job, bool) {
	if job, ok := q.tryPop(); ok {
		return job, true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-q.wake:
			if job, ok := q.tryPop(); ok {
				return job, true
			}
			// woken but another consumer (can't happen under the
			// single-consumer invariant, but costs nothing to handle)
			// already took it — keep waiting out the remaining timeout.
		case <-timer.C:
			return nil, false
		}
	}
}

func (q *JobQueue) tryPop() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.jobs) == 0 {
		return nil, false
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job, true
}
