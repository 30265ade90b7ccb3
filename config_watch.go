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

	"github.com/fsnotify/fsnotify"

	"lab.nexedi.com/kirr/connd/internal/log"
)

// WatchConfigFile is a best-effort helper: it watches path and, whenever
// the file is written or created, invokes onChange with a fresh
// ConfigFromEnv(). The file's contents are not read; the Config passed to
// onChange comes from the process environment, as at startup.
// Re-reading MaxBatchSize is never required for
// correctness, so nothing in Driver depends on this ever firing — a
// process that never calls it behaves identically.
//
// The returned cancel func stops the watch; ctx cancellation also stops it.
func WatchConfigFile(ctx context.Context, path string, onChange func(Config)) (cancel func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	ilog := log.NewInternal()
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					onChange(ConfigFromEnv())
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				ilog.Errorf(ctx, "config watch on %s: %v", path, werr)
			}
		}
	}()

	cancel = func() {
		watcher.Close()
		<-done
	}
	return cancel, nil
}
