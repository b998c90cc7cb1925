// Package metrics exposes Prometheus instrumentation for the relay
// pipeline: read/record/push counters, per-channel delivery state, and
// backlog depth.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/sensor-relay/internal/channel"
)

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	SensorReads    *prometheus.CounterVec
	SensorErrors   *prometheus.CounterVec
	Records        *prometheus.CounterVec
	Pushes         *prometheus.CounterVec
	SamplesSkipped *prometheus.CounterVec
	SamplesDropped *prometheus.CounterVec
	DeliveryState  *prometheus.GaugeVec
	BacklogDepth   *prometheus.GaugeVec
	LastPublish    prometheus.Gauge
}

// New builds the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SensorReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensor_relay",
			Name:      "sensor_reads_total",
			Help:      "Successful sensor reads per channel.",
		}, []string{"channel"}),
		SensorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensor_relay",
			Name:      "sensor_read_errors_total",
			Help:      "Failed sensor reads per channel.",
		}, []string{"channel"}),
		Records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensor_relay",
			Name:      "records_total",
			Help:      "Values committed to an outgoing record per channel.",
		}, []string{"channel"}),
		Pushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensor_relay",
			Name:      "pushes_total",
			Help:      "Push attempts by outcome.",
		}, []string{"outcome"}),
		SamplesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensor_relay",
			Name:      "samples_skipped_total",
			Help:      "Samples permanently skipped as undeliverable, per channel.",
		}, []string{"channel"}),
		SamplesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sensor_relay",
			Name:      "samples_dropped_total",
			Help:      "Samples dropped before delivery, per channel.",
		}, []string{"channel"}),
		DeliveryState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sensor_relay",
			Name:      "delivery_state",
			Help:      "Current delivery state per channel (0=idle 1=pushing 2=backlogged 3=fault).",
		}, []string{"channel"}),
		BacklogDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sensor_relay",
			Name:      "backlog_depth",
			Help:      "Buffered undelivered samples per channel.",
		}, []string{"channel"}),
		LastPublish: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sensor_relay",
			Name:      "last_publish_timestamp_seconds",
			Help:      "Unix time of the last successful publish.",
		}),
	}

	reg.MustRegister(
		m.SensorReads,
		m.SensorErrors,
		m.Records,
		m.Pushes,
		m.SamplesSkipped,
		m.SamplesDropped,
		m.DeliveryState,
		m.BacklogDepth,
		m.LastPublish,
	)
	return m
}

// NewTest builds collectors on a throwaway registry for tests.
func NewTest() *Metrics {
	return New(prometheus.NewRegistry())
}

// SetState records a channel's delivery state.
func (m *Metrics) SetState(name string, s channel.DeliveryState) {
	m.DeliveryState.WithLabelValues(name).Set(float64(s))
}
