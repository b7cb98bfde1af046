// Package push delivers APNs notifications for stored messages.
package push

import (
	"context"
	"fmt"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"

	"tenancy-backend/internal/config"
)

// Notifier sends message notifications over APNs.
type Notifier struct {
	client *apns2.Client
	topic  string
}

// NewNotifier creates an APNs notifier from configuration.
func NewNotifier(cfg config.APNSConfig) (*Notifier, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs auth key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Sandbox {
		client = client.Development()
	} else {
		client = client.Production()
	}

	return &Notifier{client: client, topic: cfg.Topic}, nil
}

// MessageReceived notifies a device that a message arrived for its user.
func (n *Notifier) MessageReceived(ctx context.Context, deviceToken, sender, content string) error {
	notification := &apns2.Notification{
		DeviceToken: deviceToken,
		Topic:       n.topic,
		Payload: payload.NewPayload().
			AlertTitle("New message from " + sender).
			AlertBody(content).
			Sound("default"),
	}

	res, err := n.client.PushWithContext(ctx, notification)
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("push rejected: %s", res.Reason)
	}
	return nil
}
