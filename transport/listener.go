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

package transport

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

// Accepted is handed to the callback Serve invokes for every new Channel.
type Accepted func(ctx context.Context, ch *Channel)

// Serve runs the accept loop on l: every accepted net.Conn is wrapped into a
// Channel and handed to onAccept. Serve blocks until l.Accept fails — which
// happens once l is closed — or ctx is cancelled, whichever comes first.
//
// The listener is closed when Serve returns, mirroring ServeLink's shape:
// accept in a loop, hand each connection off, close the listener either on
// cancellation or on return.
func Serve(ctx context.Context, l net.Listener, onAccept Accepted) error {
	defer l.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			l.Close()
		case <-done:
		}
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return errors.Wrap(err, "transport: accept")
			}
		}
		onAccept(ctx, NewChannel(conn))
	}
}
