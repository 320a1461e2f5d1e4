// README: Prometheus collectors fed by facility events.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"park/internal/modules/billing"
	"park/internal/modules/facility"
	"park/internal/modules/receipt"
	"park/internal/modules/session"
	"park/internal/modules/spot"
)

type Collector struct {
	entries    *prometheus.CounterVec
	exits      *prometheus.CounterVec
	rejections *prometheus.CounterVec
	revenue    *prometheus.CounterVec
	occupied   *prometheus.GaugeVec
	durations  prometheus.Histogram
}

var _ facility.Observer = (*Collector)(nil)

func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "park",
			Name:      "entries_total",
			Help:      "Vehicles admitted, by spot category.",
		}, []string{"category"}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "park",
			Name:      "exits_total",
			Help:      "Sessions closed, by spot category.",
		}, []string{"category"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "park",
			Name:      "rejections_total",
			Help:      "Rejected entry and exit requests, by operation and reason.",
		}, []string{"op", "reason"}),
		revenue: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "park",
			Name:      "revenue_minor_total",
			Help:      "Billed amount in minor currency units, by spot category.",
		}, []string{"category"}),
		occupied: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "park",
			Name:      "spots_occupied",
			Help:      "Occupied spots, by category.",
		}, []string{"category"}),
		durations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "park",
			Name:      "session_duration_seconds",
			Help:      "Closed session durations.",
			Buckets:   []float64{900, 1800, 3600, 2 * 3600, 4 * 3600, 8 * 3600, 24 * 3600},
		}),
	}
	for _, col := range []prometheus.Collector{c.entries, c.exits, c.rejections, c.revenue, c.occupied, c.durations} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	for _, cat := range spot.Categories {
		c.occupied.WithLabelValues(string(cat)).Set(0)
	}
	return c, nil
}

func (c *Collector) Entered(s session.Session) {
	c.entries.WithLabelValues(string(s.Category)).Inc()
	c.occupied.WithLabelValues(string(s.Category)).Inc()
}

func (c *Collector) Exited(r receipt.Receipt) {
	c.exits.WithLabelValues(string(r.Category)).Inc()
	c.occupied.WithLabelValues(string(r.Category)).Dec()
	c.revenue.WithLabelValues(string(r.Category)).Add(float64(r.Total.Amount))
	c.durations.Observe(float64(r.Seconds))
}

func (c *Collector) Rejected(op string, err error) {
	c.rejections.WithLabelValues(op, Reason(err)).Inc()
}

// Reason maps an error to a bounded label value.
func Reason(err error) string {
	switch {
	case errors.Is(err, spot.ErrSpotUnavailable):
		return "spot_unavailable"
	case errors.Is(err, session.ErrDuplicateSession):
		return "duplicate_session"
	case errors.Is(err, session.ErrUnknownSession):
		return "unknown_session"
	case errors.Is(err, session.ErrInvalidTimestamp):
		return "invalid_timestamp"
	case errors.Is(err, session.ErrSpanTooLong):
		return "span_too_long"
	case errors.Is(err, session.ErrEmptyPlate):
		return "empty_plate"
	case errors.Is(err, spot.ErrUnknownCategory):
		return "unknown_category"
	case errors.Is(err, billing.ErrNegativeDuration):
		return "negative_duration"
	case errors.Is(err, facility.ErrInvariant):
		return "invariant"
	default:
		return "other"
	}
}
