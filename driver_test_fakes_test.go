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
	"net"
	"sync"
	"time"
)

// fakeChannel is a Channel with no real socket behind it.
type fakeChannel struct {
	id string
}

func (c *fakeChannel) ID() string          { return c.id }
func (c *fakeChannel) LocalAddr() net.Addr { return &net.TCPAddr{} }
func (c *fakeChannel) RemoteAddr() net.Addr { return &net.TCPAddr{} }
func (c *fakeChannel) Raw() net.Conn       { return nil }

// fakeOutput records Flush/Close calls and can be made to fail either.
type fakeOutput struct {
	mu         sync.Mutex
	flushes    int
	closes     int
	flushErr   error
	closeErr   error
}

func (o *fakeOutput) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.flushes++
	return o.flushErr
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closes++
	return o.closeErr
}

func (o *fakeOutput) Flushes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.flushes
}

func (o *fakeOutput) Closes() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closes
}

// fakeMachine is a minimal wire.StateMachine recording what was done to it.
type fakeMachine struct {
	mu sync.Mutex

	interrupted       int
	markedTermination int
	markedFailed      []error
	closed            int
	closeErr          error

	// validateErr, when non-nil, is returned once by the next
	// ValidateTransaction call and then cleared.
	validateErr error
	validations int
}

func (m *fakeMachine) Interrupt() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interrupted++
}

func (m *fakeMachine) MarkForTermination() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markedTermination++
}

func (m *fakeMachine) MarkFailed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markedFailed = append(m.markedFailed, err)
}

func (m *fakeMachine) ValidateTransaction(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validations++
	err := m.validateErr
	m.validateErr = nil
	return err
}

func (m *fakeMachine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return m.closeErr
}

func (m *fakeMachine) Validations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validations
}

func (m *fakeMachine) Closes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *fakeMachine) Interruptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interrupted
}

func (m *fakeMachine) Failures() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.markedFailed...)
}

// fakeMetrics is a MetricsEmitter counting every call, for assertions.
type fakeMetrics struct {
	mu sync.Mutex

	opened, activated, waiting, closed int
	received, failed                   int
	started, completed                 int
}

func (m *fakeMetrics) ConnectionOpened()    { m.inc(&m.opened) }
func (m *fakeMetrics) ConnectionActivated() { m.inc(&m.activated) }
func (m *fakeMetrics) ConnectionWaiting()   { m.inc(&m.waiting) }
func (m *fakeMetrics) ConnectionClosed()    { m.inc(&m.closed) }
func (m *fakeMetrics) MessageReceived()     { m.inc(&m.received) }
func (m *fakeMetrics) MessageProcessingFailed() { m.inc(&m.failed) }

func (m *fakeMetrics) MessageProcessingStarted(time.Duration) { m.inc(&m.started) }
func (m *fakeMetrics) MessageProcessingCompleted(time.Duration) { m.inc(&m.completed) }

func (m *fakeMetrics) inc(counter *int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	*counter++
}

func (m *fakeMetrics) snapshot() fakeMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fakeMetrics{
		opened: m.opened, activated: m.activated, waiting: m.waiting, closed: m.closed,
		received: m.received, failed: m.failed, started: m.started, completed: m.completed,
	}
}

// fakeListener records lifecycle notifications.
type fakeListener struct {
	mu      sync.Mutex
	created []*Driver
	closedD []*Driver
}

func (l *fakeListener) Created(d *Driver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.created = append(l.created, d)
}

func (l *fakeListener) Closed(d *Driver) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closedD = append(l.closedD, d)
}

func (l *fakeListener) closedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.closedD)
}

// fakeClock is a manually-advanced Clock for deterministic timing assertions.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(0, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestDriver builds a Driver wired to fakes, returning the fakes for
// assertions alongside it.
func newTestDriver(id string) (d *Driver, ch *fakeChannel, out *fakeOutput, machine *fakeMachine, metrics *fakeMetrics, listener *fakeListener) {
	return newTestDriverWithConfig(id, Config{
		MaxBatchSize:           DefaultMaxBatchSize,
		IdleValidationInterval: 30 * time.Millisecond,
	})
}

func newTestDriverWithConfig(id string, cfg Config) (d *Driver, ch *fakeChannel, out *fakeOutput, machine *fakeMachine, metrics *fakeMetrics, listener *fakeListener) {
	ch = &fakeChannel{id: id}
	out = &fakeOutput{}
	machine = &fakeMachine{}
	metrics = &fakeMetrics{}
	listener = &fakeListener{}

	f := &Factory{
		Listener: listener,
		Metrics:  metrics,
		Config:   cfg,
	}
	d = f.NewDriver(ch, out, machine)
	return
}
