package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/messagewise/cost-insights/internal/model"
	"github.com/messagewise/cost-insights/pkg/metrics"
)

const (
	// StreamName is the name of the billing events stream.
	StreamName = "BILLING"

	// SubjectPrefix is the prefix for all billing event subjects.
	SubjectPrefix = "billing"

	// ConsumerName is the durable pull consumer the pipeline reads from.
	ConsumerName = "billing-pipeline"

	// subjectBuckets shards events across subjects. All events for one
	// external id hash to the same bucket, so content-before-status
	// ordering per id is preserved within a subject.
	subjectBuckets = 16
)

// EventKind discriminates the envelope payload.
type EventKind string

const (
	EventKindContent EventKind = "content"
	EventKindStatus  EventKind = "status"
)

// EventEnvelope is the unit published to the billing stream: exactly one of
// Content or Status is set.
type EventEnvelope struct {
	AccountID  string              `json:"account_id"`
	Kind       EventKind           `json:"kind"`
	ReceivedAt time.Time           `json:"received_at"`
	Content    *model.ContentEvent `json:"content,omitempty"`
	Status     *model.StatusEvent  `json:"status,omitempty"`
}

// ExternalID returns the external message id the envelope refers to.
func (e EventEnvelope) ExternalID() string {
	if e.Content != nil {
		return e.Content.ID
	}
	if e.Status != nil {
		return e.Status.ID
	}
	return ""
}

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the billing stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	// Check if stream exists
	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.WorkQueuePolicy,
		MaxAge:      7 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Webhook billing events awaiting ingestion",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject an envelope is published to. Events for
// the same external id always land on the same subject.
func EventSubject(accountID, externalID string) string {
	h := fnv.New32a()
	h.Write([]byte(externalID))
	return fmt.Sprintf("%s.evt.%s.%02d", SubjectPrefix, accountID, h.Sum32()%subjectBuckets)
}

// PublishEvent publishes an event envelope to the billing stream.
func (m *StreamManager) PublishEvent(ctx context.Context, env *EventEnvelope) (uint64, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, EventSubject(env.AccountID, env.ExternalID()), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}

	metrics.EventsPublished.WithLabelValues(string(env.Kind)).Inc()
	return ack.Sequence, nil
}

// EnsureConsumer creates (or looks up) the durable pull consumer the
// ingestion pipeline reads from.
func (m *StreamManager) EnsureConsumer(ctx context.Context) (jetstream.Consumer, error) {
	consumer, err := m.client.JetStream().CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer: %w", err)
	}
	return consumer, nil
}
