// Package events publishes schedule and maintenance lifecycle events to an
// MQTT broker.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Event types.
const (
	ScheduleCreated       = "schedule.created"
	ScheduleUpdated       = "schedule.updated"
	ScheduleStatusChanged = "schedule.status_changed"
	MaintenanceCreated    = "maintenance.created"
	MaintenanceUpdated    = "maintenance.updated"
	MaintenanceCompleted  = "maintenance.completed"
)

// Event is the payload published for every change.
type Event struct {
	Type      string    `json:"type"`
	ID        string    `json:"id"`
	VehicleID string    `json:"vehicle_id,omitempty"`
	DriverID  string    `json:"driver_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	At        time.Time `json:"at"`
}

// Topic returns the topic suffix of the event, "schedules" or "maintenance".
func (e Event) Topic() string {
	switch e.Type {
	case MaintenanceCreated, MaintenanceUpdated, MaintenanceCompleted:
		return "maintenance"
	default:
		return "schedules"
	}
}

// Publisher sends events. Implementations never fail the caller.
type Publisher interface {
	Publish(e Event)
}

// Nop drops every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(Event) {}

// Client is the subset of the paho client the publisher needs.
type Client interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// Config configures the MQTT connection.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// MQTTPublisher publishes JSON events to <prefix>/<topic>.
type MQTTPublisher struct {
	client  Client
	prefix  string
	qos     byte
	timeout time.Duration
}

// Connect dials the broker and returns a publisher.
func Connect(cfg Config) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.WithError(err).Warn("MQTT connection lost")
	}

	client := mqtt.NewClient(opts)
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connect to %s: timed out after %s", cfg.Broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker, err)
	}
	return NewMQTTPublisher(client, cfg.TopicPrefix, cfg.QoS, timeout), nil
}

// NewMQTTPublisher wraps an already connected client.
func NewMQTTPublisher(client Client, prefix string, qos byte, timeout time.Duration) *MQTTPublisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MQTTPublisher{client: client, prefix: prefix, qos: qos, timeout: timeout}
}

// Publish sends e and logs failures.
func (p *MQTTPublisher) Publish(e Event) {
	if err := p.publish(e); err != nil {
		log.WithError(err).WithFields(log.Fields{"type": e.Type, "id": e.ID}).Warn("Failed to publish event")
	}
}

func (p *MQTTPublisher) publish(e Event) error {
	if !p.client.IsConnected() {
		return fmt.Errorf("mqtt client not connected")
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	topic := e.Topic()
	if p.prefix != "" {
		topic = p.prefix + "/" + topic
	}
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	return token.Error()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
