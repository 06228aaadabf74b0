package observability

import (
	"time"

	"github.com/Sumatoshi-tech/hyperanf/pkg/anf"
)

// RoundObserver decorates an exporter with per-round metric updates.
// Round duration is measured between consecutive export calls, which
// brackets exactly one propagation step.
type RoundObserver struct {
	next    anf.Exporter
	metrics *Metrics
	last    time.Time
}

// NewRoundObserver wraps next, which may be nil when only metrics are wanted.
func NewRoundObserver(next anf.Exporter, metrics *Metrics) *RoundObserver {
	return &RoundObserver{
		next:    next,
		metrics: metrics,
	}
}

// ExportRound records round metrics, then forwards to the wrapped exporter.
func (o *RoundObserver) ExportRound(round int, estimates []float64) error {
	now := time.Now()

	// Round 0 is the seed snapshot, not a completed propagation step.
	if round > 0 {
		if !o.last.IsZero() {
			o.metrics.RoundDuration.Observe(now.Sub(o.last).Seconds())
		}

		o.metrics.RoundsTotal.Inc()
	}

	o.last = now

	sum := 0.0
	for _, estimate := range estimates {
		sum += estimate
	}

	o.metrics.EstimateSum.Set(sum)

	if o.next == nil {
		return nil
	}

	return o.next.ExportRound(round, estimates)
}
