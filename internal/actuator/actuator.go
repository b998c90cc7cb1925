// Package actuator drives the status LED in response to cloud commands.
// Commands arrive verbatim from the transport and never touch the
// delivery pipeline.
package actuator

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/sensor-relay/internal/transport"
)

// Command names recognized from the cloud.
const (
	CmdSetBlinkInterval = "SetLedBlinkInterval"
	CmdActivate         = "ActivateLed"
	CmdDeactivate       = "DeactivateLed"
)

// LED switches a physical indicator on or off.
type LED interface {
	Set(on bool) error
	Close() error
}

// Blinker interprets LED commands, including a periodic blink with equal
// on/off phases. Handle may be called from the transport's goroutine.
type Blinker struct {
	led LED
	log zerolog.Logger

	mu   sync.Mutex
	stop chan struct{} // non-nil while a blink loop is running
	done chan struct{}
}

// NewBlinker builds a blinker over the given LED.
func NewBlinker(led LED, log zerolog.Logger) *Blinker {
	return &Blinker{led: led, log: log}
}

// Handle dispatches one cloud command.
func (b *Blinker) Handle(cmd transport.Command) {
	switch cmd.Name {
	case CmdSetBlinkInterval:
		seconds, err := strconv.Atoi(cmd.Arg)
		if err != nil || seconds < 0 {
			b.log.Warn().Str("arg", cmd.Arg).Msg("invalid blink interval")
			return
		}
		if seconds == 0 {
			b.stopBlink()
			return
		}
		b.blink(time.Duration(seconds) * time.Second)

	case CmdActivate:
		b.stopBlink()
		b.set(true)

	case CmdDeactivate:
		b.stopBlink()
		b.set(false)

	default:
		b.log.Warn().Str("command", cmd.Name).Msg("unknown command ignored")
	}
}

// Close stops any blink loop and releases the LED.
func (b *Blinker) Close() error {
	b.stopBlink()
	return b.led.Close()
}

func (b *Blinker) set(on bool) {
	if err := b.led.Set(on); err != nil {
		b.log.Warn().Err(err).Bool("on", on).Msg("led set failed")
	}
}

// blink toggles the LED every half period, starting on.
func (b *Blinker) blink(half time.Duration) {
	b.stopBlink()

	stop := make(chan struct{})
	done := make(chan struct{})
	b.mu.Lock()
	b.stop, b.done = stop, done
	b.mu.Unlock()

	b.set(true)
	go func() {
		defer close(done)
		on := true
		ticker := time.NewTicker(half)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				on = !on
				b.set(on)
			}
		}
	}()
}

// stopBlink halts the blink loop and waits for it to exit, so a steady
// Set cannot be overwritten by a straggling toggle.
func (b *Blinker) stopBlink() {
	b.mu.Lock()
	stop, done := b.stop, b.done
	b.stop, b.done = nil, nil
	b.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}
