package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Refresh outcomes reported by the count synchronizer.
const (
	OutcomeApplied    = "applied"
	OutcomeStale      = "stale"
	OutcomeReadError  = "read_error"
	OutcomeNoIdentity = "no_identity"
)

// CartMetrics records cart count refreshes and cart mutations.
type CartMetrics struct {
	refreshDuration *prometheus.HistogramVec
	refreshes       *prometheus.CounterVec
	count           prometheus.Gauge
	mutations       *prometheus.CounterVec
}

// NewCartMetrics registers the cart metrics on the provided registerer. A nil
// registerer yields a recorder that drops every observation.
func NewCartMetrics(reg prometheus.Registerer) *CartMetrics {
	if reg == nil {
		return &CartMetrics{}
	}
	refreshDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_refresh_duration_seconds",
		Help:    "Duration of cart count refreshes in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"trigger"})
	refreshes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_refresh_total",
		Help: "Cart count refreshes by trigger and outcome.",
	}, []string{"trigger", "outcome"})
	count := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cart_item_count",
		Help: "Last applied cart item count.",
	})
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Successful cart mutations by operation.",
	}, []string{"op"})
	reg.MustRegister(refreshDuration, refreshes, count, mutations)
	return &CartMetrics{
		refreshDuration: refreshDuration,
		refreshes:       refreshes,
		count:           count,
		mutations:       mutations,
	}
}

// ObserveRefresh records one finished refresh.
func (c *CartMetrics) ObserveRefresh(trigger, outcome string, duration time.Duration) {
	if c == nil || c.refreshes == nil {
		return
	}
	trigger = normalizeLabel(trigger)
	c.refreshDuration.WithLabelValues(trigger).Observe(duration.Seconds())
	c.refreshes.WithLabelValues(trigger, normalizeLabel(outcome)).Inc()
}

// SetCount publishes the applied count.
func (c *CartMetrics) SetCount(count int) {
	if c == nil || c.count == nil {
		return
	}
	c.count.Set(float64(count))
}

// IncMutation counts a successful cart mutation.
func (c *CartMetrics) IncMutation(op string) {
	if c == nil || c.mutations == nil {
		return
	}
	c.mutations.WithLabelValues(normalizeLabel(op)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
