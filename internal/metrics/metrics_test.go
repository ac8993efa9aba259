package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersByFamily(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.Hit("stats")
	m.Hit("stats")
	m.Miss("doctors")
	m.StaleServe("stats")
	m.Revalidate("stats")
	m.LoadFailure("doctors")
	m.CooldownReject("doctors")
	m.DiscardedWrite("stats")
	m.LoadDuration("stats", 120*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.hits.WithLabelValues("stats")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.misses.WithLabelValues("doctors")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cooldownRejects.WithLabelValues("doctors")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.loadDuration))
}

func TestDoubleRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg)
	require.NoError(t, err)

	_, err = New(reg)
	assert.Error(t, err)
}

func TestWatchSize(t *testing.T) {
	reg := prometheus.NewRegistry()
	n := 3
	require.NoError(t, WatchSize(reg, func() int { return n }))

	count, err := testutil.GatherAndCount(reg, "clinic_admin_cache_entries")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	n = 7
	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, 7.0, families[0].GetMetric()[0].GetGauge().GetValue())
}
