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

// Package wire defines the narrow, opaque contracts the connection driver
// depends on but never implements itself: the protocol state machine and
// the output sink. Both are owned exclusively by the driver and touched
// only from the goroutine currently draining a batch.
package wire

import "context"

// StateMachine is the opaque per-connection protocol/transaction state.
//
// Perform-driven work (via Job.Perform) may mutate internal state beyond
// what this interface exposes; the driver itself only ever calls these five
// methods.
type StateMachine interface {
	// Interrupt aborts whatever operation is currently running against
	// this machine, e.g. a long-running query. It does not touch any
	// queued-but-not-yet-running job.
	Interrupt()

	// MarkForTermination tells the machine the connection is shutting
	// down; subsequent Perform calls should fast-fail.
	MarkForTermination()

	// MarkFailed records a fatal error so that the next drain emits a
	// failure response to the client before the connection closes.
	MarkFailed(err error)

	// ValidateTransaction lets the machine detect and react to an
	// expired or externally terminated open transaction. Called
	// periodically while a drain is parked waiting for jobs.
	ValidateTransaction(ctx context.Context) error

	// Close releases whatever resources the machine holds. Called at
	// most once, during driver teardown.
	Close() error
}

// PackOutput is the scoped sink a connection writes protocol responses
// into. It must be flushed at the end of every successfully processed
// batch and closed exactly once during teardown.
type PackOutput interface {
	Flush() error
	Close() error
}
