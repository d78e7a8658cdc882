package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/messagewise/cost-insights/internal/middleware"
	"github.com/messagewise/cost-insights/internal/model"
	"github.com/messagewise/cost-insights/internal/nats"
	"github.com/messagewise/cost-insights/pkg/logger"
	"github.com/messagewise/cost-insights/pkg/metrics"
)

// EventPublisher enqueues webhook events for asynchronous ingestion.
type EventPublisher interface {
	PublishEvent(ctx context.Context, env *nats.EventEnvelope) (uint64, error)
}

// WebhookHandler receives channel webhook deliveries. It validates and
// enqueues; all real processing happens on the consumer side so the channel
// gets its acknowledgement fast and never retries because of slow storage.
type WebhookHandler struct {
	publisher   EventPublisher
	verifyToken string
	logger      *logger.Logger
	now         func() time.Time
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(publisher EventPublisher, verifyToken string, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		publisher:   publisher,
		verifyToken: verifyToken,
		logger:      log,
		now:         time.Now,
	}
}

// Verify handles GET /webhook, the channel's subscription handshake: echo
// the challenge when the verify token matches.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode != "subscribe" || token == "" || token != h.verifyToken {
		writeError(w, http.StatusForbidden, "verification failed")
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// Receive handles POST /webhook. A malformed body is the only hard
// rejection; per-event publish failures are logged and the delivery is
// still acknowledged, because the channel's retry would redeliver the whole
// batch including the events that did go through.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var batch model.WebhookBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		metrics.WebhookBatchesTotal.WithLabelValues("invalid").Inc()
		writeError(w, http.StatusBadRequest, "invalid webhook payload")
		return
	}

	receivedAt := h.now().UTC()
	published, failed := 0, 0

	for _, entry := range batch.Entries {
		if err := middleware.ValidateAccountID(entry.AccountID); err != nil {
			h.logger.Warn("webhook entry skipped", zap.Error(err))
			failed++
			continue
		}

		for _, change := range entry.Changes {
			for i := range change.Value.Messages {
				ev := change.Value.Messages[i]
				env := &nats.EventEnvelope{
					AccountID:  entry.AccountID,
					Kind:       nats.EventKindContent,
					ReceivedAt: receivedAt,
					Content:    &ev,
				}
				h.publish(ctx, env, &published, &failed)
			}
			for i := range change.Value.Statuses {
				ev := change.Value.Statuses[i]
				env := &nats.EventEnvelope{
					AccountID:  entry.AccountID,
					Kind:       nats.EventKindStatus,
					ReceivedAt: receivedAt,
					Status:     &ev,
				}
				h.publish(ctx, env, &published, &failed)
			}
		}
	}

	outcome := "ok"
	if failed > 0 {
		outcome = "partial"
	}
	metrics.WebhookBatchesTotal.WithLabelValues(outcome).Inc()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "accepted",
		"published": published,
		"failed":    failed,
	})
}

func (h *WebhookHandler) publish(ctx context.Context, env *nats.EventEnvelope, published, failed *int) {
	if err := middleware.ValidateExternalID(env.ExternalID()); err != nil {
		h.logger.Warn("webhook event skipped",
			zap.String("account_id", env.AccountID),
			zap.Error(err),
		)
		*failed++
		return
	}

	if _, err := h.publisher.PublishEvent(ctx, env); err != nil {
		h.logger.Error("failed to publish webhook event",
			zap.String("account_id", env.AccountID),
			zap.String("external_id", env.ExternalID()),
			zap.String("kind", string(env.Kind)),
			zap.Error(err),
		)
		*failed++
		return
	}
	*published++
}
