// Copyright (c) 2025 Hotcirc Authors
// Licensed under the MIT License

package device

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/hotcirc/hotcirc/config"
	"github.com/hotcirc/hotcirc/pkg/errors"
	"github.com/hotcirc/hotcirc/pkg/interfaces"
	"github.com/hotcirc/hotcirc/pkg/logger"
)

const (
	connectTimeout       = 10 * time.Second
	publishTimeout       = 5 * time.Second
	subscribeTimeout     = 5 * time.Second
	connectRetryInterval = 5 * time.Second
	disconnectQuiesceMs  = 1000
)

// Conn is a shared MQTT broker connection. All switches, the button
// subscription and the cycle publisher multiplex over it.
type Conn struct {
	client paho.Client
}

// Connect establishes the broker connection. The client auto-reconnects
// and retries the initial connect, so a briefly unavailable broker does
// not fail startup once the first connect succeeds.
func Connect(cfg config.MQTTConfig) (*Conn, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetOnConnectHandler(func(paho.Client) {
		logger.Info().Str("broker", cfg.Broker).Msg("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Warn().Err(err).Msg("MQTT connection lost, reconnecting")
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, errors.NewActuatorError("mqtt", "connect", errors.ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, errors.NewActuatorError("mqtt", "connect", err)
	}

	return &Conn{client: client}, nil
}

// IsConnected reports whether the broker connection is up.
func (c *Conn) IsConnected() bool {
	return c.client.IsConnected()
}

// Close disconnects from the broker after letting in-flight messages drain.
func (c *Conn) Close() {
	c.client.Disconnect(disconnectQuiesceMs)
}

// Switch returns a binary actuator publishing to the given command topic.
// name is the actuator's role in error output ("pump", "led_green").
func (c *Conn) Switch(name, topic string) *MQTTSwitch {
	return &MQTTSwitch{client: c.client, name: name, topic: topic}
}

// MQTTSwitch drives a relay or LED through retained ON/OFF messages.
// Retained so the node recovers the commanded state after its own restart.
type MQTTSwitch struct {
	client paho.Client
	name   string
	topic  string
}

// Set publishes the desired state. QoS 1 because a lost pump command
// leaves the loop in the wrong state until the next transition.
func (s *MQTTSwitch) Set(ctx context.Context, on bool) error {
	payload := "OFF"
	if on {
		payload = "ON"
	}

	token := s.client.Publish(s.topic, 1, true, payload)
	if !waitToken(ctx, token, publishTimeout) {
		return errors.NewActuatorError(s.name, "set", errors.ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return errors.NewActuatorError(s.name, "set", err)
	}
	return nil
}

// Button subscribes to the node's debounced button topic and tracks its
// level. The node publishes edges; the controller samples the level once
// per tick.
func (c *Conn) Button(topic string) (*MQTTButton, error) {
	b := &MQTTButton{}

	token := c.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		pressed, ok := parseButtonPayload(string(msg.Payload()))
		if !ok {
			logger.Warn().
				Str("topic", msg.Topic()).
				Str("payload", string(msg.Payload())).
				Msg("Unrecognized button payload, ignoring")
			return
		}
		b.pressed.Store(pressed)
	})
	if !token.WaitTimeout(subscribeTimeout) {
		return nil, errors.NewActuatorError("button", "subscribe", errors.ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, errors.NewActuatorError("button", "subscribe", err)
	}

	return b, nil
}

// MQTTButton reports the debounced level of the momentary trigger.
type MQTTButton struct {
	pressed atomic.Bool
}

// Pressed returns true while the button is held down.
func (b *MQTTButton) Pressed() bool {
	return b.pressed.Load()
}

// parseButtonPayload maps the payload formats sensor nodes publish to a
// button level. The second return value is false for unrecognized input.
func parseButtonPayload(payload string) (pressed, ok bool) {
	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case "ON", "1", "PRESSED", "TRUE":
		return true, true
	case "OFF", "0", "RELEASED", "FALSE":
		return false, true
	default:
		return false, false
	}
}

// CyclePublisher returns a publisher for completed pump cycles on the
// given events topic.
func (c *Conn) CyclePublisher(topic string) *MQTTCyclePublisher {
	return &MQTTCyclePublisher{client: c.client, topic: topic}
}

// MQTTCyclePublisher announces completed pump runs on the event topic so
// other home-automation consumers can react to them.
type MQTTCyclePublisher struct {
	client paho.Client
	topic  string
}

// cyclePayload is the JSON wire format for a completed run.
type cyclePayload struct {
	Cycle cyclePayloadInner `json:"cycle"`
}

type cyclePayloadInner struct {
	Start        string  `json:"start"`
	End          string  `json:"end"`
	Trigger      string  `json:"trigger"`
	DurationS    float64 `json:"duration_s"`
	EnergyWh     float64 `json:"energy_wh"`
	Disinfection bool    `json:"disinfection"`
}

// formatCyclePayload creates the JSON payload for a completed cycle.
func formatCyclePayload(cycle *interfaces.Cycle) ([]byte, error) {
	payload := cyclePayload{
		Cycle: cyclePayloadInner{
			Start:        cycle.Start.UTC().Format(time.RFC3339),
			End:          cycle.End.UTC().Format(time.RFC3339),
			Trigger:      cycle.Trigger,
			DurationS:    cycle.Duration,
			EnergyWh:     cycle.EnergyWh,
			Disinfection: cycle.Disinfection,
		},
	}
	return json.Marshal(payload)
}

// PublishCycle publishes one completed pump cycle. QoS 1 (at-least-once),
// not retained: stale cycle events are worse than duplicated ones.
func (p *MQTTCyclePublisher) PublishCycle(ctx context.Context, cycle *interfaces.Cycle) error {
	payload, err := formatCyclePayload(cycle)
	if err != nil {
		return errors.NewActuatorError("events", "format cycle", err)
	}

	token := p.client.Publish(p.topic, 1, false, payload)
	if !waitToken(ctx, token, publishTimeout) {
		return errors.NewActuatorError("events", "publish cycle", errors.ErrTimeout)
	}
	if err := token.Error(); err != nil {
		return errors.NewActuatorError("events", "publish cycle", err)
	}
	return nil
}

// waitToken waits for a paho token to complete, honoring both the caller's
// context and a hard timeout.
func waitToken(ctx context.Context, token paho.Token, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	select {
	case <-token.Done():
		return true
	case <-ctx.Done():
		return false
	case <-deadline.C:
		return false
	}
}
