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

// Package demo is a minimal wire.StateMachine: it upper-cases whatever
// frame it receives and writes the result back. It exists to give
// cmd/connd-server something to drive end to end without pulling in a real
// protocol implementation.
package demo

import (
	"context"
	"strings"
	"sync"

	"lab.nexedi.com/kirr/connd/transport"
)

// Machine is a per-connection wire.StateMachine bound to the Output frames
// are written through.
type Machine struct {
	out *transport.Output

	mu          sync.Mutex
	terminating bool
	failure     error
}

// NewMachine returns a Machine that writes its responses through out.
func NewMachine(out *transport.Output) *Machine {
	return &Machine{out: out}
}

// Interrupt is a no-op: Echo has no long-running operation to abort —
// Perform always returns before the next call could race an Interrupt.
func (m *Machine) Interrupt() {}

func (m *Machine) MarkForTermination() {
	m.mu.Lock()
	m.terminating = true
	m.mu.Unlock()
}

// MarkFailed records err as the reason this connection is closing and
// buffers a failure frame describing it. It does not flush: the forced
// single-job drain that always follows a scheduling error flushes once it
// completes without a job error, at which point this frame goes out as
// the "one last failure response" the client sees before the connection
// closes. A second call is a no-op — only the first failure reaches the
// client.
func (m *Machine) MarkFailed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure != nil {
		return
	}
	m.failure = err
	WriteFrame(m.out, FailureFrame(err))
}

// ValidateTransaction has nothing to check: Echo never opens a transaction
// that could expire out from under a parked drain.
func (m *Machine) ValidateTransaction(ctx context.Context) error {
	return nil
}

func (m *Machine) Close() error {
	return nil
}

func (m *Machine) isTerminating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.terminating
}

// Echo is the one real operation: it writes upper(frame) as a single
// response frame.
func Echo(frame []byte) []byte {
	return []byte(strings.ToUpper(string(frame)))
}
