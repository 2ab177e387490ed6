package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/retailops/api/internal/domain"
)

// DefaultTopic is the channel lifecycle events are published to unless configured otherwise.
const DefaultTopic = "systemevents"

// DefaultAckTimeout bounds how long Notify waits for the server acknowledgement.
const DefaultAckTimeout = 2 * time.Second

// PubSubNotifier publishes lifecycle events as JSON messages on a Pub/Sub topic.
type PubSubNotifier struct {
	topic      *pubsub.Topic
	marshal    func(any) ([]byte, error)
	ackTimeout time.Duration
}

// PubSubOption customises a PubSubNotifier.
type PubSubOption func(*PubSubNotifier)

// WithAckTimeout overrides DefaultAckTimeout.
func WithAckTimeout(timeout time.Duration) PubSubOption {
	return func(p *PubSubNotifier) {
		if timeout > 0 {
			p.ackTimeout = timeout
		}
	}
}

// NewPubSubNotifier constructs a Pub/Sub backed notifier.
func NewPubSubNotifier(topic *pubsub.Topic, opts ...PubSubOption) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub notifier: topic is required")
	}
	p := &PubSubNotifier{
		topic:      topic,
		marshal:    json.Marshal,
		ackTimeout: DefaultAckTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Notify publishes the event and waits at most the ack timeout for the server acknowledgement.
// The message stays queued in the client when the wait gives up.
func (p *PubSubNotifier) Notify(ctx context.Context, event domain.LifecycleEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub notifier: not initialised")
	}

	data, err := p.marshal(event)
	if err != nil {
		return fmt.Errorf("marshal lifecycle event: %w", err)
	}

	attrs := make(map[string]string, 3)
	setAttr(attrs, "eventType", string(event.Kind))
	setAttr(attrs, "entityId", event.EntityID)
	setAttr(attrs, "relatedId", event.RelatedID)

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	waitCtx, cancel := context.WithTimeout(ctx, p.ackTimeout)
	defer cancel()
	if _, err := result.Get(waitCtx); err != nil {
		return fmt.Errorf("publish lifecycle event: %w", err)
	}
	return nil
}

// Close flushes pending messages.
func (p *PubSubNotifier) Close() error {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
	return nil
}

// EnsureTopic returns the named topic, creating it when it does not exist yet.
func EnsureTopic(ctx context.Context, client *pubsub.Client, name string) (*pubsub.Topic, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = DefaultTopic
	}
	topic := client.Topic(name)
	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("check topic %s: %w", name, err)
	}
	if exists {
		return topic, nil
	}
	return client.CreateTopic(ctx, name)
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
