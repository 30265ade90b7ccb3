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
	"context"

	"lab.nexedi.com/kirr/connd/wire"
)

// Job is one unit of protocol work, performed against the connection's
// state machine. It is opaque to the Driver: either a decoded client
// message handler, or an empty sentinel used by Stop to wake a parked
// drain.
type Job interface {
	Perform(ctx context.Context, machine wire.StateMachine) error
}

// JobFunc adapts a plain function to Job.
type JobFunc func(ctx context.Context, machine wire.StateMachine) error

func (f JobFunc) Perform(ctx context.Context, machine wire.StateMachine) error {
	return f(ctx, machine)
}

// sentinelJob is the empty job Stop enqueues purely to wake a drain parked
// in waitForJobs so that close() runs on a worker goroutine. A drain that
// is not parked stops at the start of its next round once shouldClose is
// set, leaving the sentinel and any other still-queued jobs unexecuted.
var sentinelJob = JobFunc(func(context.Context, wire.StateMachine) error { return nil })
