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

import "sync/atomic"

// flags holds the three monotonic booleans that drive the connection's
// lifecycle: shouldClose (set once, when teardown has been decided),
// closed (set once, when teardown has actually run), and idle (toggled by
// every drain, true exactly when no drain is in progress).
//
// Kept as three independent atomics (AtomicBoolean x3 in the Bolt
// connection driver this mirrors) rather than folded into one tagged
// state; a tagged-enum alternative would also have been valid.
type flags struct {
	shouldClose atomic.Bool
	closed      atomic.Bool
	idle        atomic.Bool
}

func newFlags() *flags {
	f := &flags{}
	f.idle.Store(true)
	return f
}

// willClose reports whether shutdown has been decided, regardless of
// whether teardown has finished running.
func (f *flags) willClose() bool {
	return f.shouldClose.Load()
}

// markShouldClose sets shouldClose, returning true iff this call is the one
// that flipped it from false to true.
func (f *flags) markShouldClose() bool {
	return f.shouldClose.CompareAndSwap(false, true)
}

// markClosed sets closed, returning true iff this call is the one that
// flipped it from false to true — callers use this to run teardown exactly
// once.
func (f *flags) markClosed() bool {
	return f.closed.CompareAndSwap(false, true)
}

func (f *flags) isClosed() bool {
	return f.closed.Load()
}

func (f *flags) setIdle(v bool) {
	f.idle.Store(v)
}

func (f *flags) isIdle() bool {
	return f.idle.Load()
}
