// Package delivery implements the per-channel push/retry protocol: the
// state machine that reacts to new samples, push completions and session
// changes, and the backlog drainer that recovers missed samples from the
// buffered store oldest-first.
//
// All methods must be called from a single goroutine (the pipeline event
// loop); the machine holds no locks.
package delivery

import (
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/sensor-relay/internal/channel"
	"github.com/sweeney/sensor-relay/internal/metrics"
	"github.com/sweeney/sensor-relay/internal/store"
	"github.com/sweeney/sensor-relay/internal/transport"
)

// Machine drives delivery for every registered channel, guaranteeing at
// most one in-flight push per channel and forward-only movement of each
// channel's delivered marker.
type Machine struct {
	registry *channel.Registry
	store    store.Store
	pusher   transport.Pusher
	metrics  *metrics.Metrics
	log      zerolog.Logger

	inflight map[uuid.UUID]*channel.Channel
}

// NewMachine builds a delivery machine over the given collaborators.
func NewMachine(reg *channel.Registry, st store.Store, pusher transport.Pusher, m *metrics.Metrics, log zerolog.Logger) *Machine {
	return &Machine{
		registry: reg,
		store:    st,
		pusher:   pusher,
		metrics:  m,
		log:      log,
		inflight: make(map[uuid.UUID]*channel.Channel),
	}
}

// pushResult classifies one attempt to push a single sample.
type pushResult int

const (
	pushStarted pushResult = iota
	pushSkipped            // undeliverable payload, marker advanced past it
	pushFailed             // transient transport failure
)

// OnSample reacts to a new sample accepted into the store for ch.
func (m *Machine) OnSample(ch *channel.Channel, s store.Sample) {
	defer m.updateBacklog(ch)

	switch ch.State {
	case channel.Idle:
		// Drain rather than push the arrival directly: the store may
		// hold older undelivered samples, for example ones buffered by
		// a previous process run. Those go out first.
		m.Drain(ch)

	case channel.Pushing:
		// A push is outstanding; never issue a second one. The sample
		// waits in the store until the completion drains it.
		m.setState(ch, channel.Backlogged)

	case channel.Backlogged:
		// Already waiting on the in-flight push; nothing to do.

	case channel.Fault:
		m.setState(ch, channel.Backlogged)
		m.Drain(ch)
	}
}

// OnComplete reacts to a push outcome from the transport. Completions for
// unknown tokens are ignored, so replaying one is a no-op.
func (m *Machine) OnComplete(c transport.Completion) {
	ch, ok := m.inflight[c.Token]
	if !ok {
		m.log.Debug().Str("token", c.Token.String()).Msg("completion for unknown token ignored")
		return
	}
	delete(m.inflight, c.Token)

	if c.Status != transport.StatusSuccess {
		m.metrics.Pushes.WithLabelValues("failed").Inc()
		m.log.Error().
			Str("channel", ch.Name).
			Time("sample", ch.PendingTime).
			Msg("push failed, channel in fault until next event")
		m.setState(ch, channel.Fault)
		return
	}

	m.metrics.Pushes.WithLabelValues("success").Inc()
	if ch.PendingTime.After(ch.LastDelivered) {
		ch.LastDelivered = ch.PendingTime
	}

	// Always drain: the store may hold samples newer than the one just
	// delivered even when no arrival flipped the state to Backlogged.
	// NotFound is the only route back to Idle.
	m.Drain(ch)
}

// OnSessionStarted drains every channel without a push in flight.
// Fault and Backlogged channels resume their retries here; Idle channels
// are drained too, because a channel boots Idle with an empty delivered
// marker even when the store still holds samples from an earlier run. A
// caught-up channel returns to Idle immediately.
func (m *Machine) OnSessionStarted() {
	for _, ch := range m.registry.All() {
		if ch.State != channel.Pushing {
			m.Drain(ch)
		}
	}
}

// Drain queries the store for the oldest sample strictly newer than the
// channel's delivered marker and pushes it. Undeliverable samples are
// skipped past; an exhausted buffer means the channel is caught up.
func (m *Machine) Drain(ch *channel.Channel) {
	defer m.updateBacklog(ch)

	for {
		s, err := m.store.QueryAfter(ch.StorePath, ch.LastDelivered)
		if errors.Is(err, store.ErrNotFound) {
			m.log.Debug().Str("channel", ch.Name).Msg("backlog drained")
			m.setState(ch, channel.Idle)
			return
		}
		if err != nil {
			// Operator-visible stall; a new arrival or session restart
			// retriggers the drain.
			m.log.Error().Err(err).Str("channel", ch.Name).Msg("backlog query failed")
			return
		}

		switch m.pushSample(ch, s) {
		case pushStarted:
			m.setState(ch, channel.Pushing)
			return
		case pushSkipped:
			continue
		case pushFailed:
			m.setState(ch, channel.Fault)
			return
		}
	}
}

// InFlight reports how many pushes are outstanding, for the status page.
func (m *Machine) InFlight() int {
	return len(m.inflight)
}

// updateBacklog refreshes the channel's backlog depth gauge from the store.
func (m *Machine) updateBacklog(ch *channel.Channel) {
	n, err := m.store.CountAfter(ch.StorePath, ch.LastDelivered)
	if err != nil {
		return
	}
	m.metrics.BacklogDepth.WithLabelValues(ch.Name).Set(float64(n))
}

func (m *Machine) pushSample(ch *channel.Channel, s store.Sample) pushResult {
	rec := transport.NewRecord(0)
	if err := rec.Append(ch.RecordPath, s.Time, s.Value); err != nil {
		return m.classifyPushError(ch, s, err)
	}

	token := uuid.New()
	if err := m.pusher.Push(rec, token); err != nil {
		return m.classifyPushError(ch, s, err)
	}

	ch.PendingTime = s.Time
	m.inflight[token] = ch
	m.log.Debug().
		Str("channel", ch.Name).
		Str("token", token.String()).
		Time("sample", s.Time).
		Msg("push issued")
	return pushStarted
}

func (m *Machine) classifyPushError(ch *channel.Channel, s store.Sample, err error) pushResult {
	if errors.Is(err, transport.ErrPayload) {
		// Permanent: advance the marker so the bad sample is never
		// retried, and record the drop.
		if s.Time.After(ch.LastDelivered) {
			ch.LastDelivered = s.Time
		}
		m.metrics.SamplesSkipped.WithLabelValues(ch.Name).Inc()
		m.log.Warn().Err(err).
			Str("channel", ch.Name).
			Time("sample", s.Time).
			Msg("undeliverable sample skipped")
		return pushSkipped
	}

	m.metrics.Pushes.WithLabelValues("rejected").Inc()
	m.log.Warn().Err(err).
		Str("channel", ch.Name).
		Time("sample", s.Time).
		Msg("push not accepted")
	return pushFailed
}

func (m *Machine) setState(ch *channel.Channel, s channel.DeliveryState) {
	if ch.State == s {
		return
	}
	m.log.Debug().
		Str("channel", ch.Name).
		Str("from", ch.State.String()).
		Str("to", s.String()).
		Msg("delivery state change")
	ch.State = s
	m.metrics.SetState(ch.Name, s)
}
