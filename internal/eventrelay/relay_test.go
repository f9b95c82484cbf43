package eventrelay

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/db/models"
	"github.com/angelmondragon/loyalty-backend/pkg/enums"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/outbox"
	"github.com/angelmondragon/loyalty-backend/pkg/outbox/registry"
)

type fakeTx struct{ pingErr error }

func (f fakeTx) Ping(context.Context) error { return f.pingErr }

func (fakeTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakeOutbox struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	markErr   error
}

func (f *fakeOutbox) FetchUnpublishedForPublish(_ *gorm.DB, limit, _ int) ([]models.OutboxEvent, error) {
	if len(f.events) > limit {
		return f.events[:limit], nil
	}
	return f.events, nil
}

func (f *fakeOutbox) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.published = append(f.published, id)
	return nil
}

func (f *fakeOutbox) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeOutbox) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDLQ struct{ entries []models.OutboxDLQ }

func (f *fakeDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeRegistry struct {
	resolved *registry.ResolvedEvent
	err      error
}

func (f fakeRegistry) Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error) {
	return f.resolved, f.err
}

type fakeTopic struct {
	errs []error
	sent []*gcppubsub.Message
}

func (f *fakeTopic) Publish(_ context.Context, msg *gcppubsub.Message) (string, error) {
	f.sent = append(f.sent, msg)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return "", err
	}
	return "msg-id", nil
}

type fakeBroker struct {
	topics map[string]*fakeTopic
}

func (fakeBroker) Ping(context.Context) error { return nil }

func (f fakeBroker) Topic(name string) Topic {
	t, ok := f.topics[name]
	if !ok {
		return nil
	}
	return t
}

type countingMetrics struct{ outcomes map[string]int }

func (c *countingMetrics) IncOutbox(outcome string) { c.outcomes[outcome]++ }

func resolvedFor(restaurantID, customerID uuid.UUID) *registry.ResolvedEvent {
	return &registry.ResolvedEvent{
		Descriptor:   registry.EventDescriptor{Topic: "loyalty-events", AggregateType: enums.AggregateCustomer},
		Envelope:     outbox.PayloadEnvelope{EventID: "evt-1", OccurredAt: time.Date(2026, 5, 2, 18, 30, 0, 0, time.UTC)},
		RestaurantID: restaurantID,
		OrderingKey:  restaurantID.String() + ":" + customerID.String(),
	}
}

func pendingEvent(attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPointsAwarded,
		AggregateType: enums.AggregateCustomer,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		AttemptCount:  attempts,
	}
}

func newTestRelay(t *testing.T, store *fakeOutbox, topic *fakeTopic, reg resolver, dlq *fakeDLQ, m *countingMetrics) *Relay {
	t.Helper()
	params := Params{
		Config:   config.OutboxConfig{BatchSize: 10, PollIntervalMS: 5, MaxAttempts: 3},
		Logger:   logger.New(logger.Options{ServiceName: "relay-test", Output: io.Discard}),
		DB:       fakeTx{},
		Broker:   fakeBroker{topics: map[string]*fakeTopic{"loyalty-events": topic}},
		Outbox:   store,
		DLQ:      dlq,
		Registry: reg,
	}
	if m != nil {
		params.Metrics = m
	}
	r, err := New(params)
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	return r
}

func TestDrainPublishesWithOrderingKey(t *testing.T) {
	restaurantID, customerID := uuid.New(), uuid.New()
	store := &fakeOutbox{events: []models.OutboxEvent{pendingEvent(0)}}
	topic := &fakeTopic{}
	m := &countingMetrics{outcomes: map[string]int{}}
	r := newTestRelay(t, store, topic, fakeRegistry{resolved: resolvedFor(restaurantID, customerID)}, &fakeDLQ{}, m)

	n, err := r.Drain(context.Background())
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 1 || len(store.published) != 1 {
		t.Fatalf("expected one published row, got n=%d published=%d", n, len(store.published))
	}
	msg := topic.sent[0]
	if msg.OrderingKey != restaurantID.String()+":"+customerID.String() {
		t.Fatalf("unexpected ordering key %q", msg.OrderingKey)
	}
	if msg.Attributes["restaurant_id"] != restaurantID.String() {
		t.Fatalf("missing restaurant attribute: %+v", msg.Attributes)
	}
	if msg.Attributes["event_type"] != "points_awarded" || msg.Attributes["event_id"] != "evt-1" {
		t.Fatalf("unexpected attributes %+v", msg.Attributes)
	}
	if msg.Attributes["occurred_at"] != "2026-05-02T18:30:00Z" {
		t.Fatalf("unexpected occurred_at %q", msg.Attributes["occurred_at"])
	}
	if m.outcomes[string(OutcomePublished)] != 1 {
		t.Fatalf("expected published metric, got %+v", m.outcomes)
	}
}

func TestDrainContinuesAfterTransientFailure(t *testing.T) {
	first, second := pendingEvent(0), pendingEvent(0)
	store := &fakeOutbox{events: []models.OutboxEvent{first, second}}
	topic := &fakeTopic{errs: []error{errors.New("unavailable")}}
	dlq := &fakeDLQ{}
	r := newTestRelay(t, store, topic, fakeRegistry{resolved: resolvedFor(uuid.New(), uuid.New())}, dlq, nil)

	if _, err := r.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(store.failed) != 1 || store.failed[0] != first.ID {
		t.Fatalf("expected first row marked failed, got %v", store.failed)
	}
	if len(store.published) != 1 || store.published[0] != second.ID {
		t.Fatalf("expected second row published, got %v", store.published)
	}
	if len(dlq.entries) != 0 {
		t.Fatalf("transient failure must not dead-letter")
	}
}

func TestDrainDeadLettersOnLastAttempt(t *testing.T) {
	event := pendingEvent(2)
	store := &fakeOutbox{events: []models.OutboxEvent{event}}
	topic := &fakeTopic{errs: []error{errors.New("deadline exceeded")}}
	dlq := &fakeDLQ{}
	m := &countingMetrics{outcomes: map[string]int{}}
	r := newTestRelay(t, store, topic, fakeRegistry{resolved: resolvedFor(uuid.New(), uuid.New())}, dlq, m)

	if _, err := r.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("expected max_attempts dlq entry, got %+v", dlq.entries)
	}
	if len(store.terminal) != 1 || store.terminal[0] != event.ID {
		t.Fatalf("expected row parked as terminal")
	}
	if m.outcomes[string(OutcomeDeadLettered)] != 1 {
		t.Fatalf("expected dead_lettered metric, got %+v", m.outcomes)
	}
}

func TestDrainDeadLettersUnresolvableRows(t *testing.T) {
	store := &fakeOutbox{events: []models.OutboxEvent{pendingEvent(0)}}
	topic := &fakeTopic{}
	dlq := &fakeDLQ{}
	reg := fakeRegistry{err: registry.NewNonRetryableError(errors.New("unknown event type"))}
	r := newTestRelay(t, store, topic, reg, dlq, nil)

	if _, err := r.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(topic.sent) != 0 {
		t.Fatalf("unresolvable row must not be published")
	}
	if len(dlq.entries) != 1 || dlq.entries[0].ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("expected non_retryable dlq entry, got %+v", dlq.entries)
	}
	if dlq.entries[0].ErrorMessage == nil || *dlq.entries[0].ErrorMessage == "" {
		t.Fatalf("expected error message on dlq entry")
	}
}

func TestDrainDeadLettersUnknownTopic(t *testing.T) {
	store := &fakeOutbox{events: []models.OutboxEvent{pendingEvent(0)}}
	resolved := resolvedFor(uuid.New(), uuid.New())
	resolved.Descriptor.Topic = "missing-topic"
	dlq := &fakeDLQ{}
	r := newTestRelay(t, store, &fakeTopic{}, fakeRegistry{resolved: resolved}, dlq, nil)

	if _, err := r.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if len(dlq.entries) != 1 {
		t.Fatalf("expected unknown topic to dead-letter")
	}
}

func TestDrainAbortsWhenMarkFails(t *testing.T) {
	store := &fakeOutbox{events: []models.OutboxEvent{pendingEvent(0)}, markErr: errors.New("conn reset")}
	r := newTestRelay(t, store, &fakeTopic{}, fakeRegistry{resolved: resolvedFor(uuid.New(), uuid.New())}, &fakeDLQ{}, nil)

	if _, err := r.Drain(context.Background()); err == nil {
		t.Fatalf("expected batch error when marking fails")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newTestRelay(t, &fakeOutbox{}, &fakeTopic{}, fakeRegistry{}, &fakeDLQ{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	if err := r.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestRunFailsWhenDatabaseUnreachable(t *testing.T) {
	r := newTestRelay(t, &fakeOutbox{}, &fakeTopic{}, fakeRegistry{}, &fakeDLQ{}, nil)
	r.db = fakeTx{pingErr: errors.New("refused")}

	if err := r.Run(context.Background()); err == nil {
		t.Fatalf("expected ping failure")
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Params{}); err == nil {
		t.Fatalf("expected error for empty params")
	}
}
