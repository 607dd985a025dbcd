package protocol

import (
	"encoding/json"
	"time"
)

// NotificationMessage is the message format for notifications handed to a
// queue or broker.
type NotificationMessage struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"` // alert, reminder, recovered, digest
	DeviceID  string    `json:"device_id,omitempty"`
	Parameter string    `json:"parameter,omitempty"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Priority  int       `json:"priority"`
	Tags      []string  `json:"tags,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// EncodeNotification encodes a NotificationMessage to JSON
func EncodeNotification(msg *NotificationMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeNotification decodes JSON to NotificationMessage
func DecodeNotification(data []byte) (*NotificationMessage, error) {
	var msg NotificationMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
