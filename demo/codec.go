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

package demo

import (
	"context"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"lab.nexedi.com/kirr/connd"
	"lab.nexedi.com/kirr/connd/transport"
	"lab.nexedi.com/kirr/connd/wire"
)

// MaxFrameLen bounds a single frame so a hostile or confused peer cannot
// make ReadFrame allocate without limit.
const MaxFrameLen = 1 << 20

// ReadFrame reads one length-prefixed frame: a 4-byte big-endian length
// followed by that many payload bytes.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenbuf [4]byte
	if _, err := io.ReadFull(r, lenbuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenbuf[:])
	if n > MaxFrameLen {
		return nil, errors.Errorf("demo: frame length %d exceeds %d", n, MaxFrameLen)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload to w prefixed with its big-endian length.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenbuf [4]byte
	binary.BigEndian.PutUint32(lenbuf[:], uint32(len(payload)))
	if _, err := w.Write(lenbuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// FailureFrame formats err as the payload of the failure frame
// Machine.MarkFailed writes for the client. Jobs performed afterwards
// still write their echoed frames.
func FailureFrame(err error) []byte {
	return []byte("ERROR: " + err.Error())
}

// job is the connd.Job a decoded frame becomes: performing it writes the
// echoed response to out.
type job struct {
	frame []byte
	out   *transport.Output
}

// NewJob wraps a decoded frame as the connd.Job Driver.Enqueue expects.
func NewJob(frame []byte, out *transport.Output) connd.Job {
	return &job{frame: frame, out: out}
}

func (j *job) Perform(ctx context.Context, machine wire.StateMachine) error {
	m, ok := machine.(*Machine)
	if !ok {
		return errors.Errorf("demo: Perform called with unexpected machine type %T", machine)
	}
	if m.isTerminating() {
		return nil
	}
	return WriteFrame(j.out, Echo(j.frame))
}
