// Package pipeline runs the relay's event loop. One goroutine dispatches
// three classes of event (timer tick, push completion, session change),
// and each handler runs to completion before the next is dispatched, so
// the delivery core needs no locks.
//
// Two trigger modes feed the same delivery protocol: polling mode reads
// sensors straight into batched publishes on a schedule, buffered mode
// reads sensors into the sample store and delivers store notifications
// one sample at a time.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/sensor-relay/internal/channel"
	"github.com/sweeney/sensor-relay/internal/delivery"
	"github.com/sweeney/sensor-relay/internal/sampler"
	"github.com/sweeney/sensor-relay/internal/scheduler"
	"github.com/sweeney/sensor-relay/internal/status"
	"github.com/sweeney/sensor-relay/internal/store"
	"github.com/sweeney/sensor-relay/internal/transport"
)

// Mode selects what drives the delivery protocol.
type Mode string

const (
	// ModePolling reads sensors on a tick and publishes batched records.
	ModePolling Mode = "polling"

	// ModeBuffered reads sensors into the store and delivers individual
	// samples as the store accepts them.
	ModeBuffered Mode = "buffered"
)

// Config holds the loop settings shared by both modes.
type Config struct {
	Mode         Mode
	TickInterval time.Duration
}

// Pipeline owns the event loop. It implements suture's Service interface.
type Pipeline struct {
	cfg      Config
	registry *channel.Registry
	pusher   transport.Pusher
	log      zerolog.Logger

	scheduler *scheduler.Scheduler // polling mode
	sampler   *sampler.Sampler     // buffered mode
	machine   *delivery.Machine    // buffered mode

	tracker   *status.Tracker
	sessionUp bool
}

// NewPolling builds a polling-mode pipeline.
func NewPolling(reg *channel.Registry, sched *scheduler.Scheduler, pusher transport.Pusher, cfg Config, log zerolog.Logger) *Pipeline {
	cfg.Mode = ModePolling
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = scheduler.DefaultTickInterval
	}
	return &Pipeline{
		cfg:       cfg,
		registry:  reg,
		pusher:    pusher,
		scheduler: sched,
		log:       log,
	}
}

// NewBuffered builds a buffered-mode pipeline and wires the store's
// notifications into the delivery machine. Because the sampler pushes
// into the store from the event loop and notifications are synchronous,
// OnSample always runs on the loop goroutine.
func NewBuffered(reg *channel.Registry, st store.Store, smp *sampler.Sampler, machine *delivery.Machine, pusher transport.Pusher, cfg Config, log zerolog.Logger) (*Pipeline, error) {
	cfg.Mode = ModeBuffered
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = scheduler.DefaultTickInterval
	}
	p := &Pipeline{
		cfg:      cfg,
		registry: reg,
		pusher:   pusher,
		sampler:  smp,
		machine:  machine,
		log:      log,
	}

	for _, ch := range reg.All() {
		if err := st.Subscribe(ch.StorePath, func(path string, s store.Sample) {
			if c := reg.ByStorePath(path); c != nil {
				machine.OnSample(c, s)
			}
		}); err != nil {
			return nil, fmt.Errorf("subscribe %s: %w", ch.StorePath, err)
		}
	}
	return p, nil
}

// Serve runs the event loop until the context is cancelled.
func (p *Pipeline) Serve(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	p.log.Info().
		Str("mode", string(p.cfg.Mode)).
		Dur("tick", p.cfg.TickInterval).
		Int("channels", p.registry.Len()).
		Msg("pipeline started")

	for {
		select {
		case <-ctx.Done():
			p.log.Info().Msg("pipeline stopping")
			return ctx.Err()
		case now := <-ticker.C:
			p.HandleTick(now)
		case c := <-p.pusher.Completions():
			p.HandleCompletion(c)
		case s := <-p.pusher.SessionEvents():
			p.HandleSession(s)
		}
	}
}

// HandleTick runs one sampling cycle. Ticks are ignored while the session
// is down; per-channel delivery state is untouched so recovery resumes on
// session restart.
func (p *Pipeline) HandleTick(now time.Time) {
	if !p.sessionUp {
		return
	}
	switch p.cfg.Mode {
	case ModePolling:
		p.scheduler.Tick(now)
	case ModeBuffered:
		p.sampler.Sample(now)
	}
	p.publishStatus()
}

// HandleCompletion routes a push outcome to the active delivery core.
func (p *Pipeline) HandleCompletion(c transport.Completion) {
	switch p.cfg.Mode {
	case ModePolling:
		p.scheduler.OnComplete(c)
	case ModeBuffered:
		p.machine.OnComplete(c)
	}
	p.publishStatus()
}

// HandleSession reacts to session up/down. In-flight pushes are not
// cancelled on session loss; their completions still arrive.
func (p *Pipeline) HandleSession(s transport.SessionState) {
	up := s == transport.SessionStarted
	if up == p.sessionUp {
		return
	}
	p.sessionUp = up
	p.log.Info().Str("session", s.String()).Msg("session state changed")

	if up && p.cfg.Mode == ModeBuffered {
		p.machine.OnSessionStarted()
	}
	p.publishStatus()
}

// SetTracker attaches a status tracker. It is refreshed after every
// handled event, so HTTP handlers always see the latest channel states.
func (p *Pipeline) SetTracker(tr *status.Tracker) { p.tracker = tr }

func (p *Pipeline) publishStatus() {
	if p.tracker == nil {
		return
	}
	channels := make([]status.ChannelStatus, 0, p.registry.Len())
	for _, ch := range p.registry.All() {
		channels = append(channels, status.ChannelStatus{
			Name:          ch.Name,
			State:         ch.State.String(),
			LastRead:      ch.LastTimeRead,
			LastRecorded:  ch.LastTimeRecorded,
			LastDelivered: ch.LastDelivered,
		})
	}
	p.tracker.UpdateChannels(channels)
	p.tracker.SetSession(p.sessionUp)
	if p.scheduler != nil {
		p.tracker.SetLastPublish(p.scheduler.LastPublish())
	}
}

// SessionUp reports whether the remote session is currently usable.
func (p *Pipeline) SessionUp() bool { return p.sessionUp }

// Mode reports the configured trigger mode.
func (p *Pipeline) Mode() Mode { return p.cfg.Mode }
