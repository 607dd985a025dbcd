package queue

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/smukkama/home-monitor/internal/notification"
	"github.com/smukkama/home-monitor/internal/protocol"
	"go.uber.org/zap"
)

// MessageSource is satisfied by Consumer.
type MessageSource interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// Forwarder consumes notification messages and delivers them through a
// dispatcher. A message is committed only after it was delivered, or when
// it cannot be decoded at all.
type Forwarder struct {
	source     MessageSource
	dispatcher notification.Dispatcher
	logger     *zap.Logger
	retryDelay time.Duration
}

func NewForwarder(source MessageSource, dispatcher notification.Dispatcher, logger *zap.Logger) *Forwarder {
	return &Forwarder{
		source:     source,
		dispatcher: dispatcher,
		logger:     logger,
		retryDelay: 5 * time.Second,
	}
}

// Run forwards messages until ctx is cancelled.
func (f *Forwarder) Run(ctx context.Context) error {
	for {
		msg, err := f.source.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logger.Error("Failed to consume message", zap.Error(err))
			if !f.wait(ctx) {
				return ctx.Err()
			}
			continue
		}

		if err := f.handle(ctx, msg); err != nil {
			return err
		}
	}
}

// handle retries delivery until it succeeds, the transport rejects the
// notification, or ctx ends.
func (f *Forwarder) handle(ctx context.Context, msg kafka.Message) error {
	decoded, err := protocol.DecodeNotification(msg.Value)
	if err != nil {
		f.logger.Error("Dropping undecodable notification",
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return f.commit(ctx, msg)
	}

	n := notification.FromMessage(decoded)
	for attempt := 1; ; attempt++ {
		err := f.dispatcher.Send(ctx, n)
		if err == nil {
			break
		}
		if errors.Is(err, notification.ErrRejected) {
			f.logger.Error("Dropping rejected notification",
				zap.String("id", decoded.ID),
				zap.Int64("offset", msg.Offset),
				zap.Error(err),
			)
			return f.commit(ctx, msg)
		}
		f.logger.Warn("Failed to deliver notification",
			zap.String("id", decoded.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if !f.wait(ctx) {
			return ctx.Err()
		}
	}

	f.logger.Info("Notification delivered",
		zap.String("id", decoded.ID),
		zap.String("kind", decoded.Kind),
		zap.String("device_id", decoded.DeviceID),
	)
	return f.commit(ctx, msg)
}

func (f *Forwarder) commit(ctx context.Context, msg kafka.Message) error {
	if err := f.source.Commit(ctx, msg); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Error("Failed to commit offset", zap.Error(err))
	}
	return nil
}

func (f *Forwarder) wait(ctx context.Context) bool {
	t := time.NewTimer(f.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
