package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RecordEventsChannel is the broker channel carrying record changes.
const RecordEventsChannel = "record-events"

// Record change operations.
const (
	RecordOpUpsert = "upsert"
	RecordOpUpdate = "update"
	RecordOpDelete = "delete"
)

// Publisher is the broker-side half of change-event publishing.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// RecordEvent describes one mutation of the key-value store.
type RecordEvent struct {
	ID     string    `json:"id"`
	Op     string    `json:"op"`
	Domain string    `json:"domain"`
	Key    string    `json:"key"`
	UserID int       `json:"userId"`
	At     time.Time `json:"at"`
}

// EventPublisher emits record change events best-effort: a broker
// failure is logged and never surfaced to the API caller. A nil
// *EventPublisher is valid and publishes nothing.
type EventPublisher struct {
	publisher Publisher
	logger    *slog.Logger
}

func NewEventPublisher(publisher Publisher, logger *slog.Logger) *EventPublisher {
	if publisher == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{publisher: publisher, logger: logger}
}

// RecordChanged publishes one change event.
func (p *EventPublisher) RecordChanged(ctx context.Context, op, domain, key string, userID int) {
	if p == nil {
		return
	}

	event := RecordEvent{
		ID:     uuid.NewString(),
		Op:     op,
		Domain: domain,
		Key:    key,
		UserID: userID,
		At:     time.Now().UTC(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal record event", "error", err)
		return
	}

	attrs := map[string]string{"op": op, "domain": domain}
	if _, err := p.publisher.Publish(ctx, RecordEventsChannel, data, attrs); err != nil {
		p.logger.Error("publish record event",
			"error", err,
			"op", op,
			"domain", domain,
			"key", key,
		)
	}
}
