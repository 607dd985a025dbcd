package notification

import (
	"context"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/smukkama/home-monitor/internal/protocol"
)

// MQTTConfig configures the MQTT dispatcher.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
}

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
}

// MQTTDispatcher publishes the JSON notification message to a topic.
type MQTTDispatcher struct {
	client  mqttPublisher
	topic   string
	qos     byte
	timeout time.Duration
	now     func() time.Time
	close   func()
}

// NewMQTTDispatcher connects to the broker.
func NewMQTTDispatcher(cfg MQTTConfig) (*MQTTDispatcher, error) {
	if cfg.Topic == "" {
		return nil, fmt.Errorf("mqtt topic is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "home-monitor"
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	d := newMQTTDispatcher(client, cfg.Topic, cfg.QoS)
	d.close = func() { client.Disconnect(1000) }
	return d, nil
}

func newMQTTDispatcher(client mqttPublisher, topic string, qos byte) *MQTTDispatcher {
	return &MQTTDispatcher{
		client:  client,
		topic:   topic,
		qos:     qos,
		timeout: 5 * time.Second,
		now:     time.Now,
	}
}

func (d *MQTTDispatcher) Send(_ context.Context, n Notification) error {
	payload, err := protocol.EncodeNotification(ToMessage(n, d.now()))
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	token := d.client.Publish(d.topic, d.qos, false, payload)
	if !token.WaitTimeout(d.timeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (d *MQTTDispatcher) Close() error {
	if d.close != nil {
		d.close()
	}
	return nil
}
