package observability_test

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/hyperanf/internal/observability"
)

// errForwarded simulates a wrapped sink failure.
var errForwarded = errors.New("forwarded")

// captureExporter records the last exported round.
type captureExporter struct {
	round     int
	estimates []float64
	calls     int
}

func (c *captureExporter) ExportRound(round int, estimates []float64) error {
	c.round = round
	c.estimates = estimates
	c.calls++

	return nil
}

// failingExporter always errors.
type failingExporter struct{}

func (failingExporter) ExportRound(int, []float64) error {
	return errForwarded
}

func TestMetrics_HandlerServesInstruments(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics()
	metrics.Nodes.Set(42)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/metrics", nil)

	metrics.Handler().ServeHTTP(recorder, request)

	require.Equal(t, 200, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "hyperanf_nodes 42")
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	t.Parallel()

	// Two instances must not collide on registration.
	first := observability.NewMetrics()
	second := observability.NewMetrics()

	first.RoundsTotal.Inc()

	assert.InDelta(t, 1.0, testutil.ToFloat64(first.RoundsTotal), 1e-9)
	assert.InDelta(t, 0.0, testutil.ToFloat64(second.RoundsTotal), 1e-9)
}

func TestRoundObserver_RecordsAndForwards(t *testing.T) {
	t.Parallel()

	metrics := observability.NewMetrics()
	capture := &captureExporter{}
	observer := observability.NewRoundObserver(capture, metrics)

	estimates := []float64{1, 2, 3}

	require.NoError(t, observer.ExportRound(0, estimates))
	require.NoError(t, observer.ExportRound(1, estimates))

	assert.Equal(t, 2, capture.calls)
	assert.Equal(t, 1, capture.round)
	assert.Equal(t, estimates, capture.estimates)

	// The round 0 seed snapshot is not a completed propagation step.
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.RoundsTotal), 1e-9)
	assert.InDelta(t, 6.0, testutil.ToFloat64(metrics.EstimateSum), 1e-9)
}

func TestRoundObserver_NilNext(t *testing.T) {
	t.Parallel()

	observer := observability.NewRoundObserver(nil, observability.NewMetrics())

	assert.NoError(t, observer.ExportRound(0, []float64{1}))
}

func TestRoundObserver_PropagatesSinkError(t *testing.T) {
	t.Parallel()

	observer := observability.NewRoundObserver(failingExporter{}, observability.NewMetrics())

	assert.ErrorIs(t, observer.ExportRound(0, nil), errForwarded)
}
