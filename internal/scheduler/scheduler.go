// Package scheduler implements the polling publish loop: on every tick it
// reads all registered channels, records significant changes into a shared
// outgoing record, and decides whether the accumulated batch is flushed
// now, deferred, or forced out to bound staleness.
//
// All methods must be called from a single goroutine (the pipeline event
// loop).
package scheduler

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/sensor-relay/internal/channel"
	"github.com/sweeney/sensor-relay/internal/metrics"
	"github.com/sweeney/sensor-relay/internal/transport"
)

// Default publish timing, inherited from the deployed configuration.
const (
	DefaultTickInterval = 1 * time.Second
	DefaultMinInterval  = 10 * time.Second
	DefaultMaxInterval  = 120 * time.Second
	DefaultTimeToStale  = 60 * time.Second
)

// Config holds the publish timing bounds.
type Config struct {
	// MinInterval is the minimum spacing between publishes. A publish
	// wanted sooner is deferred, never dropped.
	MinInterval time.Duration

	// MaxInterval forces a flush of a channel whose value never crosses
	// its threshold, provided a fresher read exists.
	MaxInterval time.Duration

	// TimeToStale is the age past which a channel's unrecorded read is
	// force-recorded during a publish (catch-up).
	TimeToStale time.Duration

	// MaxRecordEntries bounds the outgoing batch. Zero means
	// transport.DefaultMaxEntries.
	MaxRecordEntries int
}

func (c *Config) applyDefaults() {
	if c.MinInterval <= 0 {
		c.MinInterval = DefaultMinInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	if c.TimeToStale <= 0 {
		c.TimeToStale = DefaultTimeToStale
	}
}

// Scheduler accumulates recorded values and publishes them as batches.
type Scheduler struct {
	registry *channel.Registry
	pusher   transport.Pusher
	cfg      Config
	metrics  *metrics.Metrics
	log      zerolog.Logger

	record      *transport.Record
	lastPublish time.Time
	deferred    bool

	// at most one batch push outstanding
	pending      *transport.Record
	pendingToken uuid.UUID
}

// New builds a scheduler over the given registry and transport.
func New(reg *channel.Registry, pusher transport.Pusher, cfg Config, m *metrics.Metrics, log zerolog.Logger) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		registry: reg,
		pusher:   pusher,
		cfg:      cfg,
		metrics:  m,
		log:      log,
		record:   transport.NewRecord(cfg.MaxRecordEntries),
	}
}

// Tick runs one read/record/publish cycle at the given time.
func (s *Scheduler) Tick(now time.Time) {
	wanted := false
	for _, ch := range s.registry.All() {
		if s.evaluate(ch, now) {
			wanted = true
		}
	}

	if !wanted && !s.deferred {
		return
	}
	s.publish(now)
}

// evaluate reads one channel and records its value if significant. It
// reports whether a publish is wanted for this channel.
func (s *Scheduler) evaluate(ch *channel.Channel, now time.Time) bool {
	wanted := false

	v, err := ch.Read()
	if err != nil {
		s.metrics.SensorErrors.WithLabelValues(ch.Name).Inc()
		s.log.Warn().Err(err).Str("channel", ch.Name).Msg("sensor read failed")
	} else {
		s.metrics.SensorReads.WithLabelValues(ch.Name).Inc()
		ch.LastRead = v
		ch.LastTimeRead = now
		if ch.NeverRecorded() || ch.Threshold(ch.LastRecorded, v) {
			wanted = s.recordValue(ch, now, v)
		}
	}

	// Forced flush: the channel has gone unrecorded too long and holds a
	// read fresher than the last publish. The value itself is committed
	// by the staleness catch-up at publish time.
	if now.Sub(ch.LastTimeRecorded) > s.cfg.MaxInterval && ch.LastTimeRead.After(s.lastPublish) {
		wanted = true
	}
	return wanted
}

// recordValue commits a value into the outgoing record and advances the
// channel's recorded slot. On record failure the slot is not advanced, so
// the same value is retried next cycle.
func (s *Scheduler) recordValue(ch *channel.Channel, ts time.Time, v channel.Value) bool {
	if err := s.record.Append(ch.RecordPath, ts, v); err != nil {
		s.log.Warn().Err(err).Str("channel", ch.Name).Msg("record failed")
		return false
	}
	ch.LastRecorded = v
	ch.LastTimeRecorded = ts
	s.metrics.Records.WithLabelValues(ch.Name).Inc()
	return true
}

// publish flushes the accumulated record, honouring the minimum spacing
// and catching up stale channels first.
func (s *Scheduler) publish(now time.Time) {
	if !s.lastPublish.IsZero() && now.Sub(s.lastPublish) < s.cfg.MinInterval {
		s.deferred = true
		return
	}
	if s.pending != nil {
		// A batch is already in flight; try again once it completes.
		s.deferred = true
		return
	}

	// Staleness catch-up: channels whose recorded value is old but which
	// have a fresher read ride along even without a threshold crossing.
	for _, ch := range s.registry.All() {
		if now.Sub(ch.LastTimeRecorded) > s.cfg.TimeToStale && ch.LastTimeRead.After(ch.LastTimeRecorded) {
			s.recordValue(ch, ch.LastTimeRead, ch.LastRead)
		}
	}

	if s.record.Empty() {
		s.deferred = false
		return
	}

	token := uuid.New()
	if err := s.pusher.Push(s.record, token); err != nil {
		if errors.Is(err, transport.ErrPayload) {
			// The batch can never be sent; drop it rather than wedge
			// the pipeline.
			s.log.Error().Err(err).Int("entries", s.record.Len()).Msg("batch dropped, unencodable")
			s.metrics.Pushes.WithLabelValues("rejected").Inc()
			s.record = transport.NewRecord(s.cfg.MaxRecordEntries)
			s.deferred = false
			return
		}
		s.log.Warn().Err(err).Msg("batch push not accepted")
		s.metrics.Pushes.WithLabelValues("rejected").Inc()
		s.deferred = true
		return
	}

	s.log.Debug().Int("entries", s.record.Len()).Str("token", token.String()).Msg("batch push issued")
	s.pending = s.record
	s.pendingToken = token
	s.record = transport.NewRecord(s.cfg.MaxRecordEntries)
	s.lastPublish = now
	s.deferred = false
}

// OnComplete reacts to the outcome of a batch push. On failure the batch
// is restored in front of any values recorded since, so nothing committed
// is silently lost.
func (s *Scheduler) OnComplete(c transport.Completion) {
	if s.pending == nil || c.Token != s.pendingToken {
		s.log.Debug().Str("token", c.Token.String()).Msg("completion for unknown batch ignored")
		return
	}
	pending := s.pending
	s.pending = nil
	s.pendingToken = uuid.Nil

	if c.Status == transport.StatusSuccess {
		s.metrics.Pushes.WithLabelValues("success").Inc()
		s.metrics.LastPublish.Set(float64(s.lastPublish.Unix()))
		s.log.Debug().Int("entries", pending.Len()).Msg("batch delivered")
		return
	}

	s.metrics.Pushes.WithLabelValues("failed").Inc()
	recorded := s.record.Entries()
	if dropped := pending.Extend(recorded); dropped > 0 {
		s.log.Error().Int("dropped", dropped).Msg("batch restore overflow, newest entries dropped")
		s.rollback(recorded[len(recorded)-dropped:])
	}
	s.record = pending
	s.deferred = true
	s.log.Error().Int("entries", s.record.Len()).Msg("batch push failed, will retry")
}

// rollback clears the recorded slot of every channel whose entries were
// dropped from a restored batch, so the channel re-records on the next
// cycle instead of waiting for another threshold crossing.
func (s *Scheduler) rollback(dropped []transport.Entry) {
	for _, ch := range s.registry.All() {
		for _, e := range dropped {
			if e.Path != ch.RecordPath && !strings.HasPrefix(e.Path, ch.RecordPath+".") {
				continue
			}
			ch.LastTimeRecorded = time.Time{}
			s.metrics.SamplesDropped.WithLabelValues(ch.Name).Inc()
			break
		}
	}
}

// Deferred reports whether a publish is waiting for the throttle window,
// for the status page.
func (s *Scheduler) Deferred() bool { return s.deferred }

// LastPublish returns the time of the most recent accepted publish.
func (s *Scheduler) LastPublish() time.Time { return s.lastPublish }
