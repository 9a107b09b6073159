package mq

import (
	"context"
	"fmt"
	"strings"

	"github.com/domainkv/apiserver/config"
)

// NewBackend constructs the configured broker backend. Backend "none"
// (or empty) yields a nil Backend: event publishing is disabled.
func NewBackend(ctx context.Context, cfg config.EventsConfig) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "none":
		return nil, nil
	case "rabbitmq":
		return NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return NewPubSubClient(ctx, cfg.PubSub)
	default:
		return nil, fmt.Errorf("unknown events backend %q", cfg.Backend)
	}
}
