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

package log

import (
	"context"
	"fmt"
)

// task represents a currently running operation, e.g. "batch-drain" or
// "wait-for-jobs" for a given connection id. It lives in this package
// rather than a standalone one because the only thing a task stack is
// for, in this codebase, is prefixing log lines — withTask is the sole
// reader of Current, on every call, for both the internal and user
// channel.
type task struct {
	parent *task
	name   string
}

type taskKey struct{}

// Running pushes a new named task onto ctx's operation stack. Both
// Logger channels pick this up automatically: any log call made with the
// returned ctx (or a context derived from it) is prefixed with the
// current stack, outermost first.
func Running(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, taskKey{}, &task{parent: Current(ctx), name: name})
}

// Runningf is Running with fmt.Sprintf formatting.
func Runningf(ctx context.Context, format string, argv ...interface{}) context.Context {
	return Running(ctx, fmt.Sprintf(format, argv...))
}

// Current returns the task currently associated with ctx, or nil if none.
func Current(ctx context.Context) *task {
	t, _ := ctx.Value(taskKey{}).(*task)
	return t
}

// String renders the whole operation stack, outermost first, e.g.
// "conn[c1]: batch-drain".
func (t *task) String() string {
	if t == nil {
		return ""
	}
	prefix := t.parent.String()
	if prefix != "" {
		prefix += ": "
	}
	return prefix + t.name
}
