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

// Package transport supplies the connd.Channel implementation accepted
// connections are wrapped in, plus the buffered wire.PackOutput writer
// every Driver flushes responses through.
package transport

import (
	"bufio"
	"fmt"
	"net"
	"sync/atomic"
)

// Channel wraps a raw net.Conn with the stable id a Driver is keyed by.
type Channel struct {
	id   string
	conn net.Conn
}

var nextID atomic.Uint64

// NewChannel assigns conn the next sequential id and wraps it.
func NewChannel(conn net.Conn) *Channel {
	id := nextID.Add(1)
	return &Channel{id: fmt.Sprintf("conn-%d", id), conn: conn}
}

func (c *Channel) ID() string           { return c.id }
func (c *Channel) LocalAddr() net.Addr  { return c.conn.LocalAddr() }
func (c *Channel) RemoteAddr() net.Addr { return c.conn.RemoteAddr() }
func (c *Channel) Raw() net.Conn        { return c.conn }

// NewOutput returns a buffered wire.PackOutput writing to c's raw
// connection. Flush pushes whatever is buffered to the socket; Close shuts
// down the underlying connection, which in turn unblocks any concurrent
// read the decoder side might be parked in.
func (c *Channel) NewOutput() *Output {
	return &Output{w: bufio.NewWriter(c.conn), conn: c.conn}
}

// Output is the bufio.Writer-backed wire.PackOutput every Driver this
// package's Channel was handed to flushes responses through.
type Output struct {
	w    *bufio.Writer
	conn net.Conn
}

// Write satisfies io.Writer so protocol encoders can write directly into
// the buffer without reaching for a separate handle.
func (o *Output) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

func (o *Output) Flush() error {
	return o.w.Flush()
}

func (o *Output) Close() error {
	return o.conn.Close()
}
