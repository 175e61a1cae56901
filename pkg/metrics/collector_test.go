/**
 * Copyright (c) 2022, Xerra Earth Observation Institute.
 * Copyright (c) 2025, Simeon Miteff.
 *
 * See LICENSE.TXT in the root directory of this source tree.
 */

package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct{ snap Snapshot }

func (f fakeSource) MetricsSnapshot() Snapshot { return f.snap }

func TestConnectionCollectorCollectsRegisteredConnections(t *testing.T) {
	c := NewConnectionCollector("qtp", []string{"role"}, nil)
	c.Add(1, fakeSource{Snapshot{BytesSent: 42, StreamsOpenBidi: 2}}, []string{"client"})

	expected := `
# HELP qtp_bytes_sent_total Bytes sent on this connection.
# TYPE qtp_bytes_sent_total gauge
qtp_bytes_sent_total{role="client"} 42
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected), "qtp_bytes_sent_total")
	require.NoError(t, err)
}

func TestConnectionCollectorRemoveStopsExport(t *testing.T) {
	c := NewConnectionCollector("qtp", []string{"role"}, nil)
	c.Add(1, fakeSource{Snapshot{BytesSent: 42}}, []string{"client"})
	c.Remove(1)

	count := testutil.CollectAndCount(c)
	assert.Zero(t, count)
}
