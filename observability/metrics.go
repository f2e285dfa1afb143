package observability

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "immersive"

// MetricsObserver counts events in Prometheus.
//
// Every event increments EventsTotal{type, source}. Overlay events also drive
// the Diverged gauge, which tracks how many local overlays currently hold
// changes the global snapshot has not seen: local.diverge opens an episode and
// any overlay event carrying settled=true closes it.
type MetricsObserver struct {
	EventsTotal  *prometheus.CounterVec
	Publishes    *prometheus.CounterVec
	Flushes      *prometheus.CounterVec
	Diverged     *prometheus.GaugeVec
	DroppedTotal prometheus.Counter
}

// NewMetricsObserver registers the collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &MetricsObserver{
		EventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "State container events by type and source.",
		}, []string{"type", "source"}),
		Publishes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "channel",
			Name:      "publishes_total",
			Help:      "Snapshots published per channel.",
		}, []string{"source"}),
		Flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "local",
			Name:      "flushes_total",
			Help:      "Local overlay flush outcomes.",
		}, []string{"source", "outcome"}),
		Diverged: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "local",
			Name:      "diverged",
			Help:      "Local overlays holding unflushed changes.",
		}, []string{"source"}),
		DroppedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "channel",
			Name:      "dropped_writes_total",
			Help:      "Writes ignored because the channel was closed.",
		}),
	}
}

func (m *MetricsObserver) OnEvent(ctx context.Context, event Event) {
	m.EventsTotal.WithLabelValues(string(event.Type), event.Source).Inc()

	switch event.Type {
	case EventPublish:
		m.Publishes.WithLabelValues(event.Source).Inc()
	case EventWriteDropped:
		m.DroppedTotal.Inc()
	case EventLocalDiverge:
		m.Diverged.WithLabelValues(event.Source).Inc()
	case EventLocalFlush:
		m.Flushes.WithLabelValues(event.Source, "applied").Inc()
	case EventLocalFlushAbandon:
		m.Flushes.WithLabelValues(event.Source, "abandoned").Inc()
	}
	if settled(event) {
		m.Diverged.WithLabelValues(event.Source).Dec()
	}
}

// settled reports whether an overlay event ended a divergence episode.
func settled(event Event) bool {
	v, _ := event.Data["settled"].(bool)
	return v
}
