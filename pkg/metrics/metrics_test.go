package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/small-frappuccino/rolebuttons/pkg/discord/cache"
)

func TestObservePrune(t *testing.T) {
	okBefore := testutil.ToFloat64(pruneRuns.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(pruneRuns.WithLabelValues("error"))
	rowsBefore := testutil.ToFloat64(prunedRows)

	ObservePrune(3, nil)
	ObservePrune(0, nil)
	ObservePrune(-1, errors.New("boom"))

	assert.Equal(t, okBefore+2, testutil.ToFloat64(pruneRuns.WithLabelValues("ok")))
	assert.Equal(t, errBefore+1, testutil.ToFloat64(pruneRuns.WithLabelValues("error")))
	assert.Equal(t, rowsBefore+3, testutil.ToFloat64(prunedRows))
}

func TestObservePress(t *testing.T) {
	before := testutil.ToFloat64(presses.WithLabelValues(PressAssigned))
	ObservePress(PressAssigned)
	assert.Equal(t, before+1, testutil.ToFloat64(presses.WithLabelValues(PressAssigned)))
}

type staticStats map[string]cache.KindStats

func (s staticStats) Stats() map[string]cache.KindStats { return s }

func TestCacheCollector(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCacheCollector(staticStats{
		cache.KindGuild:   {Hits: 4, Misses: 1, Entries: 2},
		cache.KindChannel: {Hits: 0, Misses: 3, Entries: 3},
	})))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

type draftCount int

func (d draftCount) Len() int { return int(d) }

func TestDraftsGauge(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	gauge := NewDraftsGauge(draftCount(3))
	require.NoError(t, reg.Register(gauge))

	assert.Equal(t, 3.0, testutil.ToFloat64(gauge))
	n, err := testutil.GatherAndCount(reg, "rolebuttons_open_drafts")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
