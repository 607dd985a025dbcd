package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/smukkama/home-monitor/internal/protocol"
)

// Publisher is satisfied by queue.Producer.
type Publisher interface {
	Publish(ctx context.Context, key string, value []byte) error
}

// KafkaDispatcher hands notifications to a topic for cmd/notification to
// deliver.
type KafkaDispatcher struct {
	publisher Publisher
	now       func() time.Time
}

func NewKafkaDispatcher(publisher Publisher) *KafkaDispatcher {
	return &KafkaDispatcher{publisher: publisher, now: time.Now}
}

// Send publishes the notification keyed by device so one device's messages
// stay ordered within a partition.
func (d *KafkaDispatcher) Send(ctx context.Context, n Notification) error {
	msg := ToMessage(n, d.now())
	data, err := protocol.EncodeNotification(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	key := n.DeviceID
	if key == "" {
		key = n.Kind
	}
	return d.publisher.Publish(ctx, key, data)
}

// ToMessage converts a notification to its wire message with a fresh id.
func ToMessage(n Notification, now time.Time) *protocol.NotificationMessage {
	return &protocol.NotificationMessage{
		ID:        uuid.NewString(),
		Kind:      n.Kind,
		DeviceID:  n.DeviceID,
		Parameter: n.Parameter,
		Title:     n.Title,
		Body:      n.Body,
		Priority:  int(n.Priority),
		Tags:      n.Tags,
		CreatedAt: now,
	}
}

// FromMessage is the inverse of ToMessage.
func FromMessage(m *protocol.NotificationMessage) Notification {
	return Notification{
		Kind:      m.Kind,
		DeviceID:  m.DeviceID,
		Parameter: m.Parameter,
		Title:     m.Title,
		Body:      m.Body,
		Priority:  Priority(m.Priority),
		Tags:      m.Tags,
	}
}
