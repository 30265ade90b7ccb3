// Copyright (C) 2017  Nexedi SA and Contributors.
//                     Kirill Smelkov <kirr@nexedi.com>
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

// Package log provides severity-leveled, task-scoped logging on top of glog.
//
// Connections need two independent log channels — an internal one for
// operators and a user-facing one — see DefaultBoltConnection's
// log/userLog split. Logger provides both; NewInternal and NewUser just pick
// a different tag and otherwise format messages, causes included, the same
// way.
//
// Running/Runningf/Current track the operation currently executing on a
// context (e.g. "conn[c1]: batch-drain") purely so every log line through
// either channel can be prefixed with it; this package is the task stack's
// only reader, so it isn't split out on its own.
package log

import (
	"context"
	"fmt"

	"github.com/golang/glog"
)

// Logger writes leveled log lines tagged with a channel name ("internal" or
// "user") and prefixed with the calling context's current task.
type Logger struct {
	channel string
}

// NewInternal returns the operator-facing logger: full detail, causes included.
func NewInternal() *Logger { return &Logger{channel: "internal"} }

// NewUser returns the client-facing logger. It formats exactly like the
// internal one (Error includes the cause); only the channel tag differs.
func NewUser() *Logger { return &Logger{channel: "user"} }

func (l *Logger) withTask(ctx context.Context, argv ...interface{}) []interface{} {
	prefix := Current(ctx).String()
	head := "[" + l.channel + "]"
	if prefix != "" {
		head += " " + prefix + ":"
	}
	return append([]interface{}{head}, argv...)
}

func (l *Logger) Info(ctx context.Context, argv ...interface{}) {
	glog.InfoDepth(1, l.withTask(ctx, argv...)...)
}

func (l *Logger) Infof(ctx context.Context, format string, argv ...interface{}) {
	glog.InfoDepth(1, l.withTask(ctx, fmt.Sprintf(format, argv...))...)
}

func (l *Logger) Warning(ctx context.Context, argv ...interface{}) {
	glog.WarningDepth(1, l.withTask(ctx, argv...)...)
}

func (l *Logger) Warningf(ctx context.Context, format string, argv ...interface{}) {
	glog.WarningDepth(1, l.withTask(ctx, fmt.Sprintf(format, argv...))...)
}

// Error logs msg together with cause's full error chain (%+v picks up
// github.com/pkg/errors stack traces when cause was wrapped with errors.Wrap).
func (l *Logger) Error(ctx context.Context, msg string, cause error) {
	glog.ErrorDepth(1, l.withTask(ctx, fmt.Sprintf("%s: %+v", msg, cause))...)
}

func (l *Logger) Errorf(ctx context.Context, format string, argv ...interface{}) {
	glog.ErrorDepth(1, l.withTask(ctx, fmt.Sprintf(format, argv...))...)
}

// Flush flushes glog's buffered output; handy to call before process exit.
func Flush() { glog.Flush() }
