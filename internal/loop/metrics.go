package loop

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nvandessel/livegraph/internal/layout"
	"github.com/nvandessel/livegraph/internal/snapshot"
)

// Metrics holds the loop's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	// tickDuration measures one frame's tick for one pane.
	// Labels: pane
	tickDuration *prometheus.HistogramVec

	// tracked is the number of nodes a pane tracks.
	// Labels: pane
	tracked *prometheus.GaugeVec

	// merges counts accepted snapshots.
	// Labels: pane, kind (init, refresh, grow)
	merges *prometheus.CounterVec

	// rejected counts refused snapshots.
	// Labels: pane, reason (malformed, unsupported_transition, canceled, other)
	rejected *prometheus.CounterVec

	// frames counts published frames.
	// Labels: pane
	frames *prometheus.CounterVec
}

// NewMetrics creates the loop collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		tickDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "livegraph",
			Subsystem: "loop",
			Name:      "tick_duration_seconds",
			Help:      "Time spent ticking the simulation in one frame",
			Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.016, 0.05, 0.25, 1},
		}, []string{"pane"}),
		tracked: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "livegraph",
			Subsystem: "layout",
			Name:      "tracked_nodes",
			Help:      "Number of nodes tracked by the layout",
		}, []string{"pane"}),
		merges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livegraph",
			Subsystem: "layout",
			Name:      "merges_total",
			Help:      "Accepted snapshots by merge kind",
		}, []string{"pane", "kind"}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livegraph",
			Subsystem: "layout",
			Name:      "rejected_total",
			Help:      "Rejected snapshots by reason",
		}, []string{"pane", "reason"}),
		frames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livegraph",
			Subsystem: "loop",
			Name:      "frames_total",
			Help:      "Frames published to subscribers",
		}, []string{"pane"}),
	}
}

func (m *Metrics) observeTick(pane string, d time.Duration) {
	if m == nil {
		return
	}
	m.tickDuration.WithLabelValues(pane).Observe(d.Seconds())
}

func (m *Metrics) setTracked(pane string, n int) {
	if m == nil {
		return
	}
	m.tracked.WithLabelValues(pane).Set(float64(n))
}

func (m *Metrics) merged(pane string, kind layout.MergeKind) {
	if m == nil {
		return
	}
	m.merges.WithLabelValues(pane, kind.String()).Inc()
}

func (m *Metrics) reject(pane string, err error) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(pane, rejectReason(err)).Inc()
}

func (m *Metrics) published(pane string) {
	if m == nil {
		return
	}
	m.frames.WithLabelValues(pane).Inc()
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, snapshot.ErrMalformed):
		return "malformed"
	case errors.Is(err, layout.ErrUnsupportedTransition):
		return "unsupported_transition"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
