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
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/require"

	"lab.nexedi.com/kirr/connd/wire"
)

type namedJob struct {
	name string
}

func (j namedJob) Perform(ctx context.Context, machine wire.StateMachine) error { return nil }

func TestJobQueueEmptyInitially(t *testing.T) {
	q := NewJobQueue()
	require.True(t, q.Empty())
	require.Equal(t, 0, q.Len())
}

// TestJobQueuePreservesOrder checks that jobs are drained strictly in the
// order they were offered — the FIFO invariant the drain loop depends on.
func TestJobQueuePreservesOrder(t *testing.T) {
	q := NewJobQueue()
	for _, name := range []string{"a", "b", "c"} {
		q.Offer(namedJob{name})
	}

	batch := q.DrainUpTo(10)
	require.Len(t, batch, 3)

	gotNames := make([]string, len(batch))
	for i, job := range batch {
		gotNames[i] = job.(namedJob).name
	}
	wantNames := []string{"a", "b", "c"}
	if diff := pretty.Compare(wantNames, gotNames); diff != "" {
		t.Fatalf("drained order mismatch (-want +got):\n%s", diff)
	}
	require.True(t, q.Empty())
}

func TestJobQueueDrainUpToBoundsBatchSize(t *testing.T) {
	q := NewJobQueue()
	for i := 0; i < 5; i++ {
		q.Offer(namedJob{})
	}

	batch := q.DrainUpTo(2)
	require.Len(t, batch, 2)
	require.Equal(t, 3, q.Len())

	rest := q.DrainUpTo(10)
	require.Len(t, rest, 3)
	require.True(t, q.Empty())
}

func TestJobQueueDrainUpToOnEmptyReturnsEmpty(t *testing.T) {
	q := NewJobQueue()
	require.Empty(t, q.DrainUpTo(5))
}

func TestJobQueuePollWithTimeoutReturnsQueuedJob(t *testing.T) {
	q := NewJobQueue()
	q.Offer(namedJob{"x"})

	job, ok := q.PollWithTimeout(time.Second)
	require.True(t, ok)
	require.Equal(t, "x", job.(namedJob).name)
}

func TestJobQueuePollWithTimeoutElapses(t *testing.T) {
	q := NewJobQueue()

	start := time.Now()
	_, ok := q.PollWithTimeout(20 * time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

// TestJobQueuePollWithTimeoutWakesOnLateOffer checks that a job offered
// while a consumer is parked in PollWithTimeout is delivered rather than
// waiting out the full timeout.
func TestJobQueuePollWithTimeoutWakesOnLateOffer(t *testing.T) {
	q := NewJobQueue()
	done := make(chan struct{})

	go func() {
		defer close(done)
		job, ok := q.PollWithTimeout(time.Second)
		if ok {
			_ = job
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Offer(namedJob{"late"})

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("PollWithTimeout did not wake up on late offer")
	}
}
