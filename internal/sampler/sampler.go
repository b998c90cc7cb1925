// Package sampler feeds the buffered pipeline: on each tick it reads every
// registered channel and pushes the reading into the sample store, which
// applies its own change-by filtering before notifying the delivery core.
package sampler

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/sensor-relay/internal/channel"
	"github.com/sweeney/sensor-relay/internal/metrics"
	"github.com/sweeney/sensor-relay/internal/store"
)

// Sampler reads channels into the store.
type Sampler struct {
	registry *channel.Registry
	store    store.Store
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// New builds a sampler over the given registry and store.
func New(reg *channel.Registry, st store.Store, m *metrics.Metrics, log zerolog.Logger) *Sampler {
	return &Sampler{registry: reg, store: st, metrics: m, log: log}
}

// Sample reads every channel once. Read failures are logged and the
// channel is skipped until the next cycle.
func (s *Sampler) Sample(now time.Time) {
	for _, ch := range s.registry.All() {
		v, err := ch.Read()
		if err != nil {
			s.metrics.SensorErrors.WithLabelValues(ch.Name).Inc()
			s.log.Warn().Err(err).Str("channel", ch.Name).Msg("sensor read failed")
			continue
		}
		s.metrics.SensorReads.WithLabelValues(ch.Name).Inc()
		ch.LastRead = v
		ch.LastTimeRead = now

		if err := s.store.Push(ch.StorePath, store.Sample{Time: now, Value: v}); err != nil {
			s.log.Warn().Err(err).Str("channel", ch.Name).Msg("store push failed")
		}
	}
}
