package metrics

import "github.com/prometheus/client_golang/prometheus"

// PoolMetrics tracks the store handle pool.
type PoolMetrics struct {
	events *prometheus.CounterVec
	idle   prometheus.Gauge
}

const (
	PoolEventDialed    = "dialed"
	PoolEventReused    = "reused"
	PoolEventEvicted   = "evicted"
	PoolEventDiscarded = "discarded"
)

func NewPoolMetrics(reg prometheus.Registerer) *PoolMetrics {
	if reg == nil {
		return &PoolMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "restobooking_pool_handle_events_total",
		Help: "Store handle lifecycle events by kind.",
	}, []string{"event"})
	idle := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "restobooking_pool_idle_handles",
		Help: "Store handles currently idle in the pool.",
	})
	reg.MustRegister(events, idle)
	return &PoolMetrics{events: events, idle: idle}
}

func (p *PoolMetrics) Inc(event string) {
	if p == nil || p.events == nil {
		return
	}
	p.events.WithLabelValues(event).Inc()
}

func (p *PoolMetrics) SetIdle(n int) {
	if p == nil || p.idle == nil {
		return
	}
	p.idle.Set(float64(n))
}
