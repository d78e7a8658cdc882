package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	natsclient "github.com/messagewise/cost-insights/internal/nats"
	"github.com/messagewise/cost-insights/pkg/logger"
	"github.com/messagewise/cost-insights/pkg/metrics"
)

// Consumer drains the billing stream into the pipeline. Events are
// acknowledged individually: a failing event is redelivered without holding
// up other subjects.
type Consumer struct {
	streams  *natsclient.StreamManager
	pipeline *Pipeline
	log      *logger.Logger
}

// NewConsumer creates a consumer bound to a pipeline.
func NewConsumer(streams *natsclient.StreamManager, pipeline *Pipeline, log *logger.Logger) *Consumer {
	return &Consumer{streams: streams, pipeline: pipeline, log: log}
}

// Start begins consuming until ctx is cancelled. It returns after the
// consume loop is registered; processing happens on JetStream callbacks.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.streams.EnsureConsumer(ctx)
	if err != nil {
		return err
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		c.handle(ctx, msg)
	})
	if err != nil {
		return err
	}

	go c.reportPending(ctx, consumer)
	go func() {
		<-ctx.Done()
		cc.Stop()
	}()
	return nil
}

// reportPending exposes the consumer backlog as a gauge.
func (c *Consumer) reportPending(ctx context.Context, consumer jetstream.Consumer) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := consumer.Info(ctx)
			if err != nil {
				continue
			}
			metrics.ConsumerPending.
				WithLabelValues(natsclient.StreamName, natsclient.ConsumerName).
				Set(float64(info.NumPending))
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg jetstream.Msg) {
	var env natsclient.EventEnvelope
	if err := json.Unmarshal(msg.Data(), &env); err != nil {
		// Malformed payloads can never succeed; drop instead of redeliver.
		c.log.Error("dropping malformed billing event", zap.Error(err))
		msg.Term()
		return
	}

	evCtx, cancel := context.WithTimeout(ctx, c.pipeline.eventTimeout)
	defer cancel()

	log := c.log.WithAccount(env.AccountID)

	var err error
	switch {
	case env.Kind == natsclient.EventKindContent && env.Content != nil:
		err = c.pipeline.ProcessContent(evCtx, env.AccountID, *env.Content)
	case env.Kind == natsclient.EventKindStatus && env.Status != nil:
		err = c.pipeline.ProcessStatus(evCtx, env.AccountID, *env.Status)
	default:
		log.Warn("billing event with no payload", zap.String("kind", string(env.Kind)))
		msg.Term()
		return
	}

	if err != nil {
		metrics.EventsProcessed.WithLabelValues(string(env.Kind), "error").Inc()
		log.Error("billing event failed, will redeliver",
			zap.String("kind", string(env.Kind)),
			zap.String("external_id", env.ExternalID()),
			zap.Error(err),
		)
		msg.Nak()
		return
	}

	metrics.EventsProcessed.WithLabelValues(string(env.Kind), "ok").Inc()
	msg.Ack()
}
