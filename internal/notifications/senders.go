package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/onboarding-enforcer/pkg/logger"
)

type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) (string, error)
}

type publisherAdapter struct {
	publisher *pubsub.Publisher
}

func (a publisherAdapter) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	return a.publisher.Publish(ctx, msg).Get(ctx)
}

// PubSubSender publishes rendered messages as JSON to the notification topic.
type PubSubSender struct {
	publisher topicPublisher
	logg      *logger.Logger
}

func NewPubSubSender(publisher *pubsub.Publisher, logg *logger.Logger) (*PubSubSender, error) {
	if publisher == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return newPubSubSender(publisherAdapter{publisher: publisher}, logg), nil
}

func newPubSubSender(publisher topicPublisher, logg *logger.Logger) *PubSubSender {
	return &PubSubSender{publisher: publisher, logg: logg}
}

func (s *PubSubSender) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	serverID, err := s.publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"kind":      string(msg.Kind),
			"audience":  string(msg.Audience),
			"tenant_id": msg.TenantID,
		},
	})
	if err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"message_id":        serverID,
			"notification_kind": string(msg.Kind),
		}), "notification published")
	}
	return nil
}

// LogSender writes rendered messages to the log. Used when no topic is configured.
type LogSender struct {
	logg *logger.Logger
}

func NewLogSender(logg *logger.Logger) *LogSender {
	return &LogSender{logg: logg}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if s.logg == nil {
		return errors.New("logger required")
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"notification_id":   msg.ID,
		"notification_kind": string(msg.Kind),
		"audience":          string(msg.Audience),
		"tenant_id":         msg.TenantID,
		"request_id":        msg.RequestID,
		"match_id":          msg.MatchID,
		"subject":           msg.Subject,
	}), "notification")
	return nil
}
