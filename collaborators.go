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
	"net"
	"time"
)

// Channel is the underlying transport a Driver was accepted on: a stable
// id, the two socket addresses, and the raw handle for anything that needs
// to reach below the framing layer (e.g. TLS renegotiation, socket options).
type Channel interface {
	ID() string
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	Raw() net.Conn
}

// LifecycleListener is notified of a connection's creation and teardown.
// Optional: a nil listener is simply never called.
type LifecycleListener interface {
	Created(d *Driver)
	Closed(d *Driver)
}

// QueueMonitor observes enqueue/drain activity. Optional, thread-safe,
// and never on the critical path — implementations should not block.
type QueueMonitor interface {
	Enqueued(d *Driver, job Job)
	Drained(d *Driver, jobs []Job)
}

// MetricsEmitter is the required sink for connection and message lifecycle
// metrics. Unlike LifecycleListener/QueueMonitor this collaborator must
// never be nil — NewDriver panics if it is.
type MetricsEmitter interface {
	ConnectionOpened()
	ConnectionActivated()
	ConnectionWaiting()
	ConnectionClosed()
	MessageReceived()
	MessageProcessingStarted(queueTime time.Duration)
	MessageProcessingCompleted(processingTime time.Duration)
	MessageProcessingFailed()
}

// Clock abstracts wall-clock reads so tests can control queue/processing
// latency measurements deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the Clock backed by the real wall clock.
var SystemClock Clock = systemClock{}
