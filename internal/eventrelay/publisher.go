package eventrelay

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

// Broker hands out topics and reports whether the transport is reachable.
type Broker interface {
	Ping(context.Context) error
	Topic(name string) Topic
}

// Topic publishes one message and blocks until the server acknowledges it.
type Topic interface {
	Publish(context.Context, *gcppubsub.Message) (string, error)
}

type pubsubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

// NewPubSubBroker adapts the shared Pub/Sub client. Its publishers have
// ordering enabled so a customer's events keep their outbox order.
func NewPubSubBroker(client pubsubClient) Broker {
	return &pubsubBroker{client: client}
}

type pubsubBroker struct {
	client pubsubClient
}

func (b *pubsubBroker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx)
}

func (b *pubsubBroker) Topic(name string) Topic {
	p := b.client.Publisher(name)
	if p == nil {
		return nil
	}
	return &pubsubTopic{publisher: p}
}

type pubsubTopic struct {
	publisher *gcppubsub.Publisher
}

func (t *pubsubTopic) Publish(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	result := t.publisher.Publish(ctx, msg)
	if result == nil {
		return "", errors.New("publish returned no result")
	}
	id, err := result.Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		// an ordered publisher pauses the key after a failure
		t.publisher.ResumePublish(msg.OrderingKey)
	}
	return id, err
}
