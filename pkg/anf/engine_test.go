package anf_test

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/hyperanf/pkg/alg/hll"
	"github.com/Sumatoshi-tech/hyperanf/pkg/anf"
	"github.com/Sumatoshi-tech/hyperanf/pkg/graph"
)

const (
	testPrecision = uint8(8)

	// pathDiameter is the diameter of the five-node path graph fixture.
	pathDiameter = 4

	// seedEstimateDelta bounds the error of a freshly seeded sketch.
	seedEstimateDelta = 0.1
)

// errSinkFailed simulates an output sink failure.
var errSinkFailed = errors.New("sink failed")

// pathGraph is 1-2-3-4-5: one component, diameter 4.
func pathGraph() *graph.Graph {
	return graph.New([]graph.Edge{
		edge(1, 2),
		edge(2, 3),
		edge(3, 4),
		edge(4, 5),
	})
}

// splitGraph has components {1,2} and {3,4,5}.
func splitGraph() *graph.Graph {
	return graph.New([]graph.Edge{
		edge(1, 2),
		edge(3, 4),
		edge(4, 5),
	})
}

func edge(from, to int64) graph.Edge {
	return graph.Edge{From: big.NewInt(from), To: big.NewInt(to)}
}

// recorder captures every exported round.
type recorder struct {
	rounds    []int
	estimates [][]float64
}

func (r *recorder) ExportRound(round int, estimates []float64) error {
	r.rounds = append(r.rounds, round)

	snapshot := make([]float64, len(estimates))
	copy(snapshot, estimates)
	r.estimates = append(r.estimates, snapshot)

	return nil
}

// failingExporter always errors.
type failingExporter struct{}

func (failingExporter) ExportRound(int, []float64) error {
	return errSinkFailed
}

func newEngine(t *testing.T, g *graph.Graph, cfg anf.Config) *anf.Engine {
	t.Helper()

	engine, err := anf.New(g, cfg)
	require.NoError(t, err)

	return engine
}

func TestNew_InvalidPrecision(t *testing.T) {
	t.Parallel()

	_, err := anf.New(pathGraph(), anf.Config{Precision: 3})
	assert.ErrorIs(t, err, hll.ErrPrecisionOutOfRange)
}

func TestRun_PathGraphConvergesWithinDiameter(t *testing.T) {
	t.Parallel()

	g := pathGraph()
	engine := newEngine(t, g, anf.Config{Precision: testPrecision})

	rec := &recorder{}

	result, err := engine.Run(context.Background(), rec)
	require.NoError(t, err)

	assert.True(t, result.Converged)
	assert.LessOrEqual(t, result.Rounds, pathDiameter,
		"fixed point must be reached within the graph diameter")

	// Every node reaches its whole component.
	for i, estimate := range result.Estimates {
		assert.InDelta(t, float64(g.NumNodes()), math.Round(estimate), 0,
			"node %s should see the full component", g.ID(int32(i)))
	}

	// One export per round, including the final one.
	require.Len(t, rec.rounds, result.Rounds+1)
	assert.Len(t, result.RoundSums, result.Rounds+1)
}

func TestRun_RoundZeroIsSeedState(t *testing.T) {
	t.Parallel()

	g := pathGraph()
	engine := newEngine(t, g, anf.Config{Precision: testPrecision})

	rec := &recorder{}

	_, err := engine.Run(context.Background(), rec)
	require.NoError(t, err)

	require.NotEmpty(t, rec.estimates)

	// At round 0 every node has seen exactly itself.
	for i, estimate := range rec.estimates[0] {
		assert.InDelta(t, 1.0, estimate, seedEstimateDelta,
			"node %s seed estimate", g.ID(int32(i)))
	}

	// Rounds are exported in order, starting at 0.
	for i, round := range rec.rounds {
		assert.Equal(t, i, round)
	}
}

func TestRun_EstimatesMonotonicallyNonDecreasing(t *testing.T) {
	t.Parallel()

	g := pathGraph()
	engine := newEngine(t, g, anf.Config{Precision: testPrecision})

	rec := &recorder{}

	result, err := engine.Run(context.Background(), rec)
	require.NoError(t, err)

	for round := 1; round < len(rec.estimates); round++ {
		for node := range rec.estimates[round] {
			assert.GreaterOrEqual(t,
				rec.estimates[round][node], rec.estimates[round-1][node],
				"node %d estimate shrank at round %d", node, round)
		}
	}

	for round := 1; round < len(result.RoundSums); round++ {
		assert.GreaterOrEqual(t, result.RoundSums[round], result.RoundSums[round-1])
	}
}

func TestRun_DisconnectedComponents(t *testing.T) {
	t.Parallel()

	g := splitGraph()
	engine := newEngine(t, g, anf.Config{Precision: testPrecision})

	result, err := engine.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, result.Converged)

	// Component sizes: {1,2} and {3,4,5}.
	wantSizes := map[string]float64{
		"1": 2, "2": 2,
		"3": 3, "4": 3, "5": 3,
	}

	for i, estimate := range result.Estimates {
		id := g.ID(int32(i)).String()
		assert.InDelta(t, wantSizes[id], math.Round(estimate), 0,
			"node %s estimate", id)
	}
}

func TestRun_SelfLoopSingleNode(t *testing.T) {
	t.Parallel()

	g := graph.New([]graph.Edge{edge(9, 9)})
	engine := newEngine(t, g, anf.Config{Precision: testPrecision})

	result, err := engine.Run(context.Background(), nil)
	require.NoError(t, err)

	assert.True(t, result.Converged)
	assert.Equal(t, 0, result.Rounds,
		"a node that only sees itself is converged at round 0")
	assert.InDelta(t, 1.0, result.Estimates[0], seedEstimateDelta)
}

func TestRun_MaxRoundsStopsEarly(t *testing.T) {
	t.Parallel()

	const maxRounds = 2

	g := pathGraph()
	engine := newEngine(t, g, anf.Config{Precision: testPrecision, MaxRounds: maxRounds})

	rec := &recorder{}

	result, err := engine.Run(context.Background(), rec)
	require.NoError(t, err)

	assert.False(t, result.Converged)
	assert.Equal(t, maxRounds, result.Rounds)

	// The truncated final round is still exported.
	assert.Len(t, rec.rounds, maxRounds+1)
}

func TestRun_ExportFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, pathGraph(), anf.Config{Precision: testPrecision})

	result, err := engine.Run(context.Background(), failingExporter{})
	require.NoError(t, err, "sink failures must not stop convergence")

	assert.True(t, result.Converged)
}

func TestRun_CancelledContext(t *testing.T) {
	t.Parallel()

	engine := newEngine(t, pathGraph(), anf.Config{Precision: testPrecision})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Run(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_DeterministicAcrossWorkerCounts(t *testing.T) {
	t.Parallel()

	workerCounts := []int{1, 2, 8}

	var baseline []float64

	for _, workers := range workerCounts {
		engine := newEngine(t, pathGraph(), anf.Config{
			Precision: testPrecision,
			Workers:   workers,
		})

		result, err := engine.Run(context.Background(), nil)
		require.NoError(t, err)

		if baseline == nil {
			baseline = result.Estimates

			continue
		}

		assert.Equal(t, baseline, result.Estimates,
			"worker count %d changed the result", workers)
	}
}
