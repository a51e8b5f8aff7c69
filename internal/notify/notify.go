package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Sender dispatches one content-free wake-up notification and returns the
// sender-assigned message id.
type Sender interface {
	Send(ctx context.Context) (string, error)
}

// FCMSender broadcasts silent data-only messages to a fixed FCM topic. Every
// app instance subscribes to the same topic, so no per-device tokens are
// tracked and the payload reveals nothing about who a message is for.
type FCMSender struct {
	client *messaging.Client
	topic  string
	logger *zap.Logger
}

// NewFCMSender initializes the Firebase app and messaging client. With an
// empty credentialsFile the ambient service-account credentials are used.
func NewFCMSender(ctx context.Context, credentialsFile, topic string, logger *zap.Logger) (*FCMSender, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("initializing firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating messaging client: %w", err)
	}

	return &FCMSender{
		client: client,
		topic:  topic,
		logger: logger,
	}, nil
}

// Send broadcasts one silent wake-up message: high delivery priority, no
// alert, background-wake semantics on both platforms. There is no internal
// retry; the next poll cycle re-triggers while events remain unfetched.
func (s *FCMSender) Send(ctx context.Context) (string, error) {
	msg := &messaging.Message{
		Topic: s.topic,
		Data: map[string]string{
			"type":      "silent_wake",
			"timestamp": strconv.FormatInt(time.Now().Unix(), 10),
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority": "10",
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					ContentAvailable: true,
				},
			},
		},
	}

	id, err := s.client.Send(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("sending wake-up message: %w", err)
	}

	s.logger.Debug("wake-up message sent",
		zap.String("messageID", id),
		zap.String("topic", s.topic),
	)
	return id, nil
}

// NoopSender is used when push delivery is disabled (dry-run deployments).
type NoopSender struct{}

// Send is a no-op.
func (NoopSender) Send(context.Context) (string, error) {
	return "", nil
}

// New creates the appropriate sender based on config.
func New(ctx context.Context, enabled bool, credentialsFile, topic string, logger *zap.Logger) (Sender, error) {
	if !enabled {
		logger.Info("push delivery disabled, using noop sender")
		return NoopSender{}, nil
	}
	return NewFCMSender(ctx, credentialsFile, topic, logger)
}
