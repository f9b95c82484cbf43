// Package registry maps outbox rows to their topic and typed payload.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/angelmondragon/loyalty-backend/pkg/outbox"
	"github.com/angelmondragon/loyalty-backend/pkg/outbox/payloads"
)

// EventDescriptor says which aggregate an event type belongs to and where it
// is published.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	decode func(json.RawMessage) (payloads.Scoped, error)
}

// ResolvedEvent is a decoded outbox row. OrderingKey is restaurant:customer,
// which keeps one customer's events in order on the topic.
type ResolvedEvent struct {
	Descriptor   EventDescriptor
	Envelope     outbox.PayloadEnvelope
	Payload      payloads.Scoped
	RestaurantID uuid.UUID
	OrderingKey  string
}

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes every loyalty event to the configured topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.LoyaltyTopic == "" {
		return nil, errors.New("loyalty topic is required")
	}
	reg := &EventRegistry{entries: map[enums.OutboxEventType]EventDescriptor{}}
	topic := cfg.LoyaltyTopic

	register[payloads.PointsAwardedEvent](reg, enums.EventPointsAwarded, enums.AggregateCustomer, topic)
	register[payloads.RewardRedeemedEvent](reg, enums.EventRewardRedeemed, enums.AggregateRedemption, topic)
	register[payloads.RedemptionUsedEvent](reg, enums.EventRedemptionUsed, enums.AggregateRedemption, topic)
	register[payloads.RedemptionExpiredEvent](reg, enums.EventRedemptionExpired, enums.AggregateRedemption, topic)
	return reg, nil
}

// register binds eventType to payload T. The constraint makes an unscoped
// payload a compile error rather than a dead letter.
func register[T any, PT interface {
	*T
	payloads.Scoped
}](reg *EventRegistry, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) {
	reg.entries[eventType] = EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode: func(data json.RawMessage) (payloads.Scoped, error) {
			var v T
			if err := json.Unmarshal(data, &v); err != nil {
				return nil, err
			}
			return PT(&v), nil
		},
	}
}

// Resolve checks the row against its descriptor and decodes the payload. All
// failures are NonRetryableError: retrying cannot fix a stored row.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryable("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, nonRetryable("decode envelope: %w", err)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nonRetryable("payload missing for %s", event.EventType)
	}

	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	restaurantID, customerID := payload.Scope()
	if restaurantID == uuid.Nil || customerID == uuid.Nil {
		return nil, nonRetryable("%s payload missing restaurant_id or customer_id", event.EventType)
	}

	return &ResolvedEvent{
		Descriptor:   desc,
		Envelope:     envelope,
		Payload:      payload,
		RestaurantID: restaurantID,
		OrderingKey:  restaurantID.String() + ":" + customerID.String(),
	}, nil
}
