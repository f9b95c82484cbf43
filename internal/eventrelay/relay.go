// Package eventrelay moves committed loyalty events from the outbox table to
// Pub/Sub. Each batch runs in one transaction so a row is either published and
// marked, retried later, or parked in the DLQ.
package eventrelay

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	goretry "github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPoll           = 500 * time.Millisecond
	defaultMaxAttempts    = 10
	defaultPublishTimeout = 15 * time.Second
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

// Outcome is what happened to a single outbox row.
type Outcome string

const (
	OutcomePublished    Outcome = "published"
	OutcomeRetry        Outcome = "retry"
	OutcomeDeadLettered Outcome = "dead_lettered"
)

type transactor interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type resolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type outcomeRecorder interface {
	IncOutbox(outcome string)
}

// Params wires a Relay.
type Params struct {
	Config   config.OutboxConfig
	Logger   *logger.Logger
	DB       transactor
	Broker   Broker
	Outbox   outboxStore
	DLQ      deadLetters
	Registry resolver
	Metrics  outcomeRecorder
}

// Relay polls the outbox and publishes pending rows in creation order.
type Relay struct {
	logg        *logger.Logger
	db          transactor
	broker      Broker
	outbox      outboxStore
	dlq         deadLetters
	registry    resolver
	metrics     outcomeRecorder
	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func New(p Params) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.Broker == nil:
		return nil, errors.New("broker is required")
	case p.Outbox == nil:
		return nil, errors.New("outbox repository is required")
	case p.DLQ == nil:
		return nil, errors.New("dlq repository is required")
	case p.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		broker:      p.Broker,
		outbox:      p.Outbox,
		dlq:         p.DLQ,
		registry:    p.Registry,
		metrics:     p.Metrics,
		batchSize:   p.Config.BatchSize,
		maxAttempts: p.Config.MaxAttempts,
		poll:        time.Duration(p.Config.PollIntervalMS) * time.Millisecond,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = defaultPoll
	}
	return r, nil
}

// Run drains the outbox until ctx is canceled. A full batch is followed
// immediately by the next one. Empty batches and failures back off
// exponentially from the poll interval, capped at ten seconds.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := r.broker.Ping(ctx); err != nil {
		return fmt.Errorf("broker ping failed: %w", err)
	}

	backoff := r.newBackoff()
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "event relay context canceled")
			return err
		}

		n, err := r.Drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "event relay batch failed", err)
		case n >= r.batchSize:
			backoff = r.newBackoff()
			continue
		case n > 0:
			backoff = r.newBackoff()
		}

		wait, _ := backoff.Next()
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *Relay) newBackoff() goretry.Backoff {
	b := goretry.NewExponential(r.poll)
	b = goretry.WithJitter(jitterWindow, b)
	return goretry.WithCappedDuration(maxIdleBackoff, b)
}

// Drain relays one batch and returns how many rows it handled.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	handled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := r.outbox.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch outbox batch: %w", err)
		}
		for _, event := range events {
			outcome, err := r.relay(ctx, tx, event)
			if err != nil {
				return err
			}
			handled++
			if r.metrics != nil {
				r.metrics.IncOutbox(string(outcome))
			}
		}
		return nil
	})
	return handled, err
}

// relay publishes a single row. The returned error is only set when the row
// could not be marked, which aborts the whole batch.
func (r *Relay) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (Outcome, error) {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":     event.ID.String(),
		"event_type":    event.EventType,
		"aggregate_id":  event.AggregateID.String(),
		"attempt_count": event.AttemptCount,
	})

	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return OutcomeDeadLettered, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"event_id":      resolved.Envelope.EventID,
		"restaurant_id": resolved.RestaurantID.String(),
		"topic":         resolved.Descriptor.Topic,
	})

	pubErr := r.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := r.outbox.MarkPublishedTx(tx, event.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		r.logg.Info(ctx, "loyalty event published")
		return OutcomePublished, nil
	}

	var nonRetry registry.NonRetryableError
	if errors.As(pubErr, &nonRetry) {
		return OutcomeDeadLettered, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, pubErr)
	}
	if event.AttemptCount+1 >= r.maxAttempts {
		return OutcomeDeadLettered, r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("max publish attempts reached: %w", pubErr))
	}

	r.logg.Warn(r.logg.WithField(ctx, "error", pubErr.Error()), "loyalty event publish failed, will retry")
	if err := r.outbox.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return "", fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return OutcomeRetry, nil
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := r.broker.Topic(resolved.Descriptor.Topic)
	if topic == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", resolved.Descriptor.Topic))
	}

	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: resolved.OrderingKey,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"restaurant_id":  resolved.RestaurantID.String(),
			"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	_, err := topic.Publish(publishCtx, msg)
	return err
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	}), "loyalty event moved to dlq")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := r.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.outbox.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
