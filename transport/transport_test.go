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
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestChannelIDIsUniquePerConnection(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()

	ch1 := NewChannel(c1)
	ch2 := NewChannel(c2)

	require.NotEmpty(t, ch1.ID())
	require.NotEqual(t, ch1.ID(), ch2.ID())
}

func TestChannelAddrAndRawDelegateToConn(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	clientDone := make(chan struct{})
	go func() {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		defer conn.Close()
		<-clientDone
	}()

	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	ch := NewChannel(conn)
	require.Equal(t, conn.LocalAddr(), ch.LocalAddr())
	require.Equal(t, conn.RemoteAddr(), ch.RemoteAddr())
	require.Same(t, conn, ch.Raw())
	close(clientDone)
}

func TestOutputBuffersUntilFlush(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	ch := NewChannel(server)
	out := ch.NewOutput()

	_, err := out.Write([]byte("hello"))
	require.NoError(t, err)

	read := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 5)
		n, _ := bufio.NewReader(client).Read(buf)
		read <- buf[:n]
	}()

	select {
	case <-read:
		t.Fatal("byte reached the wire before Flush was called")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, out.Flush())
	select {
	case got := <-read:
		require.Equal(t, []byte("hello"), got)
	case <-time.After(time.Second):
		t.Fatal("flushed bytes never reached the wire")
	}
}

func TestOutputCloseClosesUnderlyingConn(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	ch := NewChannel(server)
	out := ch.NewOutput()
	require.NoError(t, out.Close())

	_, err := server.Write([]byte("x"))
	require.Error(t, err)
}

func TestServeHandsEveryAcceptedConnToCallback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	accepted := make(chan *Channel, 2)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, ln, func(_ context.Context, ch *Channel) {
			accepted <- ch
		})
	}()

	for i := 0; i < 2; i++ {
		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		defer conn.Close()
	}

	for i := 0; i < 2; i++ {
		select {
		case <-accepted:
		case <-time.After(time.Second):
			t.Fatal("Serve did not hand off an accepted connection in time")
		}
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}
