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

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestPrometheusCountsConnectionLifecycle(t *testing.T) {
	m := NewPrometheus("connd_test", "conn")

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()

	require.Equal(t, float64(2), testutil.ToFloat64(m.connectionsOpened))
	require.Equal(t, float64(1), testutil.ToFloat64(m.connectionsClosed))
}

func TestPrometheusActiveGaugeTracksActivateWaitingPairs(t *testing.T) {
	m := NewPrometheus("connd_test", "conn2")

	m.ConnectionActivated()
	require.Equal(t, float64(1), testutil.ToFloat64(m.connectionsActive))

	m.ConnectionWaiting()
	require.Equal(t, float64(0), testutil.ToFloat64(m.connectionsActive))
}

func TestPrometheusObservesQueueAndProcessingTime(t *testing.T) {
	m := NewPrometheus("connd_test", "conn3")

	m.MessageProcessingStarted(5 * time.Millisecond)
	m.MessageProcessingCompleted(2 * time.Millisecond)

	require.EqualValues(t, 1, testutil.CollectAndCount(m.queueTime))
	require.EqualValues(t, 1, testutil.CollectAndCount(m.processingTime))
}

func TestPrometheusRegisterAttachesEveryCollector(t *testing.T) {
	m := NewPrometheus("connd_test", "conn4")
	reg := prometheus.NewRegistry()

	require.NoError(t, m.Register(reg))
	// A second Prometheus under a different subsystem registers into the
	// same registry without colliding with the first registration.
	m2 := NewPrometheus("connd_test", "conn5")
	require.NoError(t, m2.Register(reg))
}
