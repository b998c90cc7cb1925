package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// MQTTConfig holds broker connection settings.
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Topic          string
	CommandTopic   string
	PublishTimeout time.Duration
}

func (c *MQTTConfig) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = "sensor-relay"
	}
	if c.Topic == "" {
		c.Topic = "sensors/records"
	}
	if c.CommandTopic == "" {
		c.CommandTopic = "sensors/commands"
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
}

// MQTT pushes records to a broker over paho. Publish outcomes feed a
// circuit breaker; while the breaker is open, Push returns ErrBusy so the
// delivery core backs off to event-driven retry instead of hammering a
// broker that is accepting connections but timing out publishes.
type MQTT struct {
	client      paho.Client
	cfg         MQTTConfig
	breaker     *gobreaker.CircuitBreaker[any]
	completions chan Completion
	sessions    chan SessionState
	onCommand   CommandHandler
	log         zerolog.Logger
}

// NewMQTT connects to the broker and begins reporting session events.
// onCommand may be nil if cloud commands are not used.
func NewMQTT(cfg MQTTConfig, onCommand CommandHandler, log zerolog.Logger) (*MQTT, error) {
	cfg.applyDefaults()

	m := &MQTT{
		cfg:         cfg,
		completions: make(chan Completion, 64),
		sessions:    make(chan SessionState, 16),
		onCommand:   onCommand,
		log:         log,
	}

	m.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "mqtt-publish",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
		},
	})

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(m.onConnect).
		SetConnectionLostHandler(m.onConnectionLost)

	m.client = paho.NewClient(opts)
	token := m.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return m, nil
}

func (m *MQTT) onConnect(c paho.Client) {
	m.log.Info().Str("broker", m.cfg.Broker).Msg("session started")
	if m.onCommand != nil {
		tok := c.Subscribe(m.cfg.CommandTopic, 1, m.handleCommand)
		go func() {
			tok.Wait()
			if err := tok.Error(); err != nil {
				m.log.Error().Err(err).
					Str("topic", m.cfg.CommandTopic).
					Msg("command subscription failed")
			}
		}()
	}
	m.sendSession(SessionStarted)
}

func (m *MQTT) onConnectionLost(_ paho.Client, err error) {
	m.log.Warn().Err(err).Msg("session stopped")
	m.sendSession(SessionStopped)
}

func (m *MQTT) sendSession(s SessionState) {
	select {
	case m.sessions <- s:
	default:
		m.log.Warn().Str("state", s.String()).Msg("session event dropped, channel full")
	}
}

func (m *MQTT) handleCommand(_ paho.Client, msg paho.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		m.log.Warn().Err(err).Msg("malformed command payload")
		return
	}
	m.log.Info().Str("command", cmd.Name).Str("arg", cmd.Arg).Msg("command received")
	m.onCommand(cmd)
}

// Push serializes and publishes the record at QoS 1. A Completion with
// the given token follows on the completions channel once the broker
// acknowledges or the publish times out.
func (m *MQTT) Push(rec *Record, token uuid.UUID) error {
	payload, err := rec.Payload()
	if err != nil {
		return err
	}
	if m.breaker.State() == gobreaker.StateOpen {
		return ErrBusy
	}
	if !m.client.IsConnected() {
		return ErrBusy
	}

	tok := m.client.Publish(m.cfg.Topic, 1, false, payload)
	go m.await(tok, token)
	return nil
}

func (m *MQTT) await(tok paho.Token, token uuid.UUID) {
	_, err := m.breaker.Execute(func() (any, error) {
		if !tok.WaitTimeout(m.cfg.PublishTimeout) {
			return nil, errors.New("publish timeout")
		}
		return nil, tok.Error()
	})

	status := StatusSuccess
	if err != nil {
		status = StatusFailed
		m.log.Warn().Err(err).Str("token", token.String()).Msg("publish failed")
	}
	m.completions <- Completion{Token: token, Status: status}
}

func (m *MQTT) Completions() <-chan Completion { return m.completions }

func (m *MQTT) SessionEvents() <-chan SessionState { return m.sessions }

// Close disconnects from the broker.
func (m *MQTT) Close() error {
	m.client.Disconnect(1000) // 1 second timeout
	return nil
}
