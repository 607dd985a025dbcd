// Package notification renders alert and digest events into push
// notifications and delivers them.
package notification

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Priority follows the ntfy scale, 1 (min) to 5 (max).
type Priority int

const (
	PriorityMin     Priority = 1
	PriorityLow     Priority = 2
	PriorityDefault Priority = 3
	PriorityHigh    Priority = 4
	PriorityMax     Priority = 5
)

// Kind values mirror alarming.EventKind plus the digest.
const (
	KindAlert     = "alert"
	KindReminder  = "reminder"
	KindRecovered = "recovered"
	KindDigest    = "digest"
)

// Notification is a rendered, transport-independent message.
type Notification struct {
	Kind      string
	DeviceID  string
	Parameter string
	Title     string
	Body      string
	Priority  Priority
	Tags      []string
}

// ErrRejected marks a notification the transport refused outright; sending
// it again cannot succeed.
var ErrRejected = errors.New("notification rejected")

// Dispatcher delivers notifications to one transport.
type Dispatcher interface {
	Send(ctx context.Context, n Notification) error
}

// LogDispatcher only logs what would have been sent.
type LogDispatcher struct {
	logger *zap.Logger
}

func NewLogDispatcher(logger *zap.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Send(_ context.Context, n Notification) error {
	d.logger.Info("Notification",
		zap.String("kind", n.Kind),
		zap.String("device_id", n.DeviceID),
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.Int("priority", int(n.Priority)),
	)
	return nil
}

// Recorder keeps every notification it is given. It is used where a
// Dispatcher is needed without a transport, mostly in tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Notification

	// Err, if set, is returned by Send and nothing is recorded.
	Err error
}

func (r *Recorder) Send(_ context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (r *Recorder) Sent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.sent))
	copy(out, r.sent)
	return out
}
