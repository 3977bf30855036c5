// Package mqttbridge adapts the paho MQTT client to the core's publisher
// and subscriber channels: entity state events go out as retained
// JSON payloads, candidate commands come in off a command topic.
package mqttbridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/serebryakov7/rvcbridge/internal/command"
	"github.com/serebryakov7/rvcbridge/internal/entity"
)

// Config holds the broker connection settings.
type Config struct {
	Broker       string
	ClientID     string
	StateTopic   string // prefix; entity_id/channel is appended
	CommandTopic string
	AckTopic     string
	ErrorTopic   string
}

// commandPayload is the wire shape of an inbound CandidateCommand.
type commandPayload struct {
	EntityID string `json:"entity_id"`
	Family   string `json:"family"`
	Action   string `json:"action,omitempty"`
	Value    any    `json:"value"`
}

// Client wraps a paho client with the bridge's topic conventions.
type Client struct {
	cfg     Config
	client  mqtt.Client
	log     *zap.Logger
	ingress chan command.CandidateCommand
}

// NewClient builds a disconnected Client. Well-formed candidate
// commands parsed off the command topic are delivered on Ingress();
// delivery never blocks the broker callback (the ingress activity
// never blocks on the egress worker), so a full queue drops the
// command with a warning.
func NewClient(cfg Config, log *zap.Logger) *Client {
	return &Client{cfg: cfg, log: log, ingress: make(chan command.CandidateCommand, 256)}
}

// Ingress returns the channel of parsed candidate commands.
func (c *Client) Ingress() <-chan command.CandidateCommand {
	return c.ingress
}

// Connect dials the broker and subscribes to the command topic.
func (c *Client) Connect() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.Broker)
	opts.SetClientID(c.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(cl mqtt.Client) {
		c.log.Info("mqtt connected", zap.String("broker", c.cfg.Broker))
		if token := cl.Subscribe(c.cfg.CommandTopic, 1, c.handleCommand); token.Wait() && token.Error() != nil {
			c.log.Error("mqtt subscribe failed", zap.String("topic", c.cfg.CommandTopic), zap.Error(token.Error()))
		}
	})
	opts.SetConnectionLostHandler(func(cl mqtt.Client, err error) {
		c.log.Warn("mqtt connection lost", zap.Error(err))
	})

	c.client = mqtt.NewClient(opts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

// Disconnect closes the broker connection.
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

func (c *Client) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	var p commandPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		c.log.Warn("mqtt malformed command payload", zap.ByteString("payload", msg.Payload()), zap.Error(err))
		return
	}
	cand := command.CandidateCommand{
		EntityID: p.EntityID,
		Family:   command.Family(p.Family),
		Action:   command.Action(p.Action),
		Value:    p.Value,
	}
	select {
	case c.ingress <- cand:
	default:
		c.log.Warn("mqtt ingress queue full, dropping command", zap.String("entity_id", p.EntityID))
	}
}

// PublishState publishes one entity state event as a retained JSON
// message under <state_topic>/<entity_id>/<channel>.
func (c *Client) PublishState(ev entity.StateEvent) error {
	topic := fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(c.cfg.StateTopic, "/"), ev.EntityID, ev.Channel)
	payload, err := json.Marshal(map[string]any{"value": ev.Value, "ts": time.Now().Unix()})
	if err != nil {
		return err
	}
	token := c.client.Publish(topic, 0, true, payload)
	token.Wait()
	return token.Error()
}

// PublishAck publishes a CommandAck on the ack topic.
func (c *Client) PublishAck(ack command.CommandAck) error {
	payload, err := json.Marshal(ack)
	if err != nil {
		return err
	}
	token := c.client.Publish(c.cfg.AckTopic, 0, false, payload)
	token.Wait()
	return token.Error()
}

// PublishError publishes a CommandError on the error topic.
func (c *Client) PublishError(ce command.CommandError) error {
	payload, err := json.Marshal(ce)
	if err != nil {
		return err
	}
	token := c.client.Publish(c.cfg.ErrorTopic, 0, false, payload)
	token.Wait()
	return token.Error()
}
