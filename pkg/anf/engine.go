// Package anf implements a HyperANF-style fixed-point computation of the
// approximate neighbourhood function.
//
// Every node holds a HyperLogLog sketch seeded with the node itself. Each
// round unions every node's sketch with its neighbours' sketches from the
// previous round, so after round t a node's sketch covers all nodes within
// t hops. Registers only ever grow, which makes exact register equality
// between consecutive rounds a sound termination test: the fixed point is
// reached within the graph's eccentricity bound.
package anf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Sumatoshi-tech/hyperanf/pkg/alg/hll"
	"github.com/Sumatoshi-tech/hyperanf/pkg/graph"
)

// DefaultPrecision is the sketch precision used when none is configured.
const DefaultPrecision = 10

// Exporter receives each round's per-node estimates before the next round
// mutates state. Estimates are indexed by dense node index. The final
// (converged) round is exported too.
type Exporter interface {
	ExportRound(round int, estimates []float64) error
}

// Config holds propagation parameters.
type Config struct {
	// Precision is the sketch precision p shared by every node.
	Precision uint8

	// Workers is the number of parallel workers. Zero means NumCPU.
	Workers int

	// MaxRounds bounds the number of rounds as a safety valve.
	// Zero means run to the fixed point.
	MaxRounds int

	// Logger receives per-round progress. Nil disables logging.
	Logger *slog.Logger
}

// Result holds the outcome of a propagation run.
type Result struct {
	// Rounds is the index of the final exported round.
	Rounds int

	// RoundSums holds the sum of all node estimates per round, indexed by round.
	RoundSums []float64

	// Estimates holds the final per-node estimates, indexed by dense node index.
	Estimates []float64

	// Converged reports whether the fixed point was reached, as opposed to
	// stopping at the MaxRounds safety valve.
	Converged bool
}

// Engine drives every node's sketch to the fixed point of "union of itself
// and everything reachable".
//
// Two sketch tables exist for the whole run: prev is frozen (read-only) for
// the duration of a round while curr is the write target, and no two
// workers share a curr slot. Rounds are separated by full barriers.
type Engine struct {
	graph   *graph.Graph
	prev    []*hll.Sketch
	curr    []*hll.Sketch
	workers int

	maxRounds int
	logger    *slog.Logger
}

// New creates an engine over the given graph and seeds every node's sketch
// with its own identifier. Invalid precision fails fast before any round.
func New(g *graph.Graph, cfg Config) (*Engine, error) {
	precision := cfg.Precision
	if precision == 0 {
		precision = DefaultPrecision
	}

	numNodes := g.NumNodes()

	prev := make([]*hll.Sketch, numNodes)
	curr := make([]*hll.Sketch, numNodes)

	for i := range numNodes {
		sk, err := hll.New(precision)
		if err != nil {
			return nil, fmt.Errorf("anf: seed sketch for node %s: %w", g.ID(int32(i)), err)
		}

		sk.Add(g.ID(int32(i)).Bytes())

		prev[i] = sk
		curr[i] = sk.Clone()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Engine{
		graph:     g,
		prev:      prev,
		curr:      curr,
		workers:   workers,
		maxRounds: cfg.MaxRounds,
		logger:    logger,
	}, nil
}

// Run iterates rounds until the fixed point (or MaxRounds) is reached.
// Each round's state is exported before the next round mutates it,
// including the final round. Export failures are logged, not fatal:
// convergence does not depend on the sink. Cancellation is honoured
// between rounds; a round itself is atomic.
func (e *Engine) Run(ctx context.Context, export Exporter) (*Result, error) {
	result := &Result{}

	round := 0
	stopping := false

	for {
		estimates := e.estimateAll()
		sum := sumFloats(estimates)

		result.Rounds = round
		result.RoundSums = append(result.RoundSums, sum)
		result.Estimates = estimates

		e.logger.Info("round computed", "round", round, "estimate_sum", sum)

		if export != nil {
			exportErr := export.ExportRound(round, estimates)
			if exportErr != nil {
				e.logger.Error("round export failed", "round", round, "error", exportErr)
			}
		}

		if stopping {
			return result, nil
		}

		ctxErr := ctx.Err()
		if ctxErr != nil {
			return result, fmt.Errorf("anf: propagation cancelled at round %d: %w", round, ctxErr)
		}

		e.propagate()

		if e.converged() {
			// The state just exported is register-identical to the
			// fixed point, so this round is the last one.
			result.Converged = true

			return result, nil
		}

		e.advance()

		round++

		if e.maxRounds > 0 && round >= e.maxRounds {
			// One more loop iteration exports the state of this
			// final round before stopping.
			e.logger.Warn("stopping before fixed point", "max_rounds", e.maxRounds)

			stopping = true
		}
	}
}

// propagate computes curr[n] = curr[n] ∪ prev[m] for every neighbour m of
// every node n. Workers partition the node range; each worker writes only
// its own curr slots and reads the round-frozen prev table.
func (e *Engine) propagate() {
	e.forEachNode(func(n int32) {
		cur := e.curr[n]

		for _, m := range e.graph.Neighbors(n) {
			// Same precision by construction; Merge cannot fail.
			_ = cur.Merge(e.prev[m])
		}
	})
}

// converged reports whether every node's curr sketch is register-identical
// to its prev sketch. Workers short-circuit once any mismatch is found.
func (e *Engine) converged() bool {
	var mismatch atomic.Bool

	e.forEachNode(func(n int32) {
		if mismatch.Load() {
			return
		}

		if !e.curr[n].Equal(e.prev[n]) {
			mismatch.Store(true)
		}
	})

	return !mismatch.Load()
}

// advance overwrites prev with curr register-by-register. Both tables
// persist across the run; sketches are never swapped by pointer.
func (e *Engine) advance() {
	e.forEachNode(func(n int32) {
		// Same precision by construction; CopyFrom cannot fail.
		_ = e.prev[n].CopyFrom(e.curr[n])
	})
}

// estimateAll returns the per-node estimates of the curr table.
func (e *Engine) estimateAll() []float64 {
	estimates := make([]float64, e.graph.NumNodes())

	e.forEachNode(func(n int32) {
		estimates[n] = e.curr[n].Estimate()
	})

	return estimates
}

// forEachNode runs fn for every dense node index, partitioned across the
// worker pool, and returns after all workers finish (full barrier).
func (e *Engine) forEachNode(fn func(n int32)) {
	numNodes := e.graph.NumNodes()
	numWorkers := max(1, min(e.workers, numNodes))
	chunkSize := (numNodes + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup

	for i := range numWorkers {
		start := i * chunkSize
		end := min(start+chunkSize, numNodes)

		if start >= end {
			continue
		}

		wg.Add(1)

		go func(start, end int) {
			defer wg.Done()

			for n := start; n < end; n++ {
				fn(int32(n))
			}
		}(start, end)
	}

	wg.Wait()
}

// sumFloats is a plain sequential sum; per-round it is negligible next to
// the propagation step.
func sumFloats(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}

	return total
}
