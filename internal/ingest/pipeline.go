// Package ingest turns raw webhook events into Message records. It owns the
// two pieces of durable ingestion state: the per-external-id dedup marker
// and the per-recipient conversation window resolution.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/messagewise/cost-insights/internal/classifier"
	"github.com/messagewise/cost-insights/internal/model"
	"github.com/messagewise/cost-insights/internal/pricing"
	"github.com/messagewise/cost-insights/pkg/logger"
	"github.com/messagewise/cost-insights/pkg/metrics"
)

const (
	// dedupTTL keeps the idempotency marker around as long as a
	// conversation window can live.
	dedupTTL = 24 * time.Hour

	// windowDuration is the free-reply window opened by an inbound message.
	windowDuration = 24 * time.Hour

	// defaultEventTimeout bounds the processing of a single event so a
	// stuck event cannot block the rest of the batch.
	defaultEventTimeout = 5 * time.Second
)

// MessageStore is the persistence the pipeline needs: upsert keyed by
// external id plus the recent-inbound lookup used for window resolution.
type MessageStore interface {
	UpsertMessage(ctx context.Context, m *model.Message) error
	GetMessageByExternalID(ctx context.Context, accountID, externalID string) (*model.Message, error)
	LatestInboundSince(ctx context.Context, accountID, sender string, since time.Time) (*model.Message, error)
}

// IdempotencyStore is the TTL marker store. SetIfAbsent must be a single
// atomic conditional set: two concurrent deliveries of the same event must
// see exactly one true.
type IdempotencyStore interface {
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Pipeline processes content and status events. Per-event errors are
// isolated: one malformed event never aborts the batch.
type Pipeline struct {
	store      MessageStore
	idem       IdempotencyStore
	classifier *classifier.Classifier
	table      *pricing.Table
	country    string
	log        *logger.Logger

	eventTimeout time.Duration
	now          func() time.Time
}

// New creates a pipeline.
func New(store MessageStore, idem IdempotencyStore, cls *classifier.Classifier, table *pricing.Table, country string, log *logger.Logger) *Pipeline {
	return &Pipeline{
		store:        store,
		idem:         idem,
		classifier:   cls,
		table:        table,
		country:      country,
		log:          log,
		eventTimeout: defaultEventTimeout,
		now:          time.Now,
	}
}

// dedupKey namespaces the idempotency marker per event kind and id. Content
// and status markers are kept separate so a content event arriving after a
// synthesized status record still reaches the reconcile path; across kinds
// the upsert keyed by external id is the duplicate guard.
func dedupKey(kind, externalID string) string {
	return "wh:" + kind + ":" + externalID
}

// ProcessBatch runs every event of one webhook value with per-event failure
// isolation and a bounded per-event timeout.
func (p *Pipeline) ProcessBatch(ctx context.Context, accountID string, value model.WebhookValue) {
	for _, ev := range value.Messages {
		p.runIsolated(ctx, "content", ev.ID, func(evCtx context.Context) error {
			return p.ProcessContent(evCtx, accountID, ev)
		})
	}
	for _, ev := range value.Statuses {
		p.runIsolated(ctx, "status", ev.ID, func(evCtx context.Context) error {
			return p.ProcessStatus(evCtx, accountID, ev)
		})
	}
}

func (p *Pipeline) runIsolated(ctx context.Context, kind, externalID string, fn func(context.Context) error) {
	evCtx, cancel := context.WithTimeout(ctx, p.eventTimeout)
	defer cancel()

	if err := fn(evCtx); err != nil {
		metrics.EventsProcessed.WithLabelValues(kind, "error").Inc()
		p.log.Error("event processing failed",
			zap.String("kind", kind),
			zap.String("external_id", externalID),
			zap.Error(err),
		)
		return
	}
	metrics.EventsProcessed.WithLabelValues(kind, "ok").Inc()
}

// ProcessContent handles one inbound content event: dedup, window
// resolution, classification, persistence. Duplicate delivery is a silent
// no-op.
func (p *Pipeline) ProcessContent(ctx context.Context, accountID string, ev model.ContentEvent) error {
	fresh, err := p.idem.SetIfAbsent(ctx, dedupKey("content", ev.ID), dedupTTL)
	if err != nil {
		return fmt.Errorf("idempotency check for %s: %w", ev.ID, err)
	}
	if !fresh {
		metrics.EventsDuplicate.Inc()
		return nil
	}

	now := p.now().UTC()
	window, err := p.resolveWindow(ctx, accountID, ev.From, now)
	if err != nil {
		return fmt.Errorf("resolve window for %s: %w", ev.From, err)
	}

	content := ""
	if ev.Text != nil {
		content = ev.Text.Body
	}
	verdict := p.classifier.Classify(classifier.Input{
		Direction: model.DirectionInbound,
		Content:   content,
		Type:      ev.Type,
		IsReply:   ev.Context != nil,
		WindowAge: window.Age,
	})

	ts := ev.Timestamp.Time
	if ts.IsZero() {
		ts = now
	}

	// A status event may already have synthesized a record under this id;
	// reconcile in place rather than insert a second row.
	existing, err := p.store.GetMessageByExternalID(ctx, accountID, ev.ID)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", ev.ID, err)
	}
	if existing != nil {
		existing.Type = ev.Type
		existing.ClassificationConfidence = verdict.Confidence
		existing.ClassificationReason = verdict.Reasoning
		if existing.ConversationID == "" {
			existing.ConversationID = window.ConversationID
			existing.ConversationExpiresAt = window.ExpiresAt
		}
		existing.UpdatedAt = now
		return p.store.UpsertMessage(ctx, existing)
	}

	msg := &model.Message{
		ID:                       uuid.Must(uuid.NewV7()).String(),
		AccountID:                accountID,
		ExternalID:               ev.ID,
		Sender:                   ev.From,
		Direction:                model.DirectionInbound,
		Category:                 verdict.Category,
		Type:                     ev.Type,
		Status:                   "received",
		Timestamp:                ts,
		ConversationID:           window.ConversationID,
		ConversationExpiresAt:    window.ExpiresAt,
		IsInFreeWindow:           true, // inbound is always free
		Cost:                     decimal.Zero,
		ClassificationConfidence: verdict.Confidence,
		ClassificationReason:     verdict.Reasoning,
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	if err := p.store.UpsertMessage(ctx, msg); err != nil {
		return fmt.Errorf("persist %s: %w", ev.ID, err)
	}

	metrics.MessagesIngested.WithLabelValues(string(model.DirectionInbound), string(verdict.Category)).Inc()
	return nil
}

// ProcessStatus handles one status event. An existing record is updated in
// place; an unknown external id means the channel delivered a status before
// (or without) its content webhook, so an OUTBOUND record is synthesized
// from whatever hints the event carries.
func (p *Pipeline) ProcessStatus(ctx context.Context, accountID string, ev model.StatusEvent) error {
	now := p.now().UTC()

	existing, err := p.store.GetMessageByExternalID(ctx, accountID, ev.ID)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", ev.ID, err)
	}

	if existing != nil {
		existing.Status = ev.Status
		p.applyHints(existing, ev)
		existing.UpdatedAt = now
		if err := p.store.UpsertMessage(ctx, existing); err != nil {
			return fmt.Errorf("update %s: %w", ev.ID, err)
		}
		return nil
	}

	// Synthesis path: mark the id so a duplicate status delivery racing
	// with this one cannot create two records.
	fresh, err := p.idem.SetIfAbsent(ctx, dedupKey("status", ev.ID), dedupTTL)
	if err != nil {
		return fmt.Errorf("idempotency check for %s: %w", ev.ID, err)
	}
	if !fresh {
		metrics.EventsDuplicate.Inc()
		return nil
	}

	ts := ev.Timestamp.Time
	if ts.IsZero() {
		ts = now
	}

	msg := &model.Message{
		ID:                       uuid.Must(uuid.NewV7()).String(),
		AccountID:                accountID,
		ExternalID:               ev.ID,
		Sender:                   ev.RecipientID,
		Direction:                model.DirectionOutbound,
		Category:                 model.CategoryService,
		Status:                   ev.Status,
		Timestamp:                ts,
		Cost:                     decimal.Zero,
		ClassificationConfidence: 0.5,
		ClassificationReason:     "synthesized from status event without content",
		CreatedAt:                now,
		UpdatedAt:                now,
	}
	p.applyHints(msg, ev)

	// No pricing hint: a synthesized outbound record is still a billed
	// send, so charge the table rate for its category.
	if ev.Pricing == nil {
		msg.IsInFreeWindow = false
		msg.Cost = p.table.UnitPrice(p.country, msg.Category)
	}

	// No window hint: the record gets a freshly opened window.
	if msg.ConversationID == "" {
		msg.ConversationID = uuid.Must(uuid.NewV7()).String()
		msg.ConversationExpiresAt = ts.Add(windowDuration)
	}

	if err := p.store.UpsertMessage(ctx, msg); err != nil {
		return fmt.Errorf("persist %s: %w", ev.ID, err)
	}

	metrics.MessagesIngested.WithLabelValues(string(model.DirectionOutbound), string(msg.Category)).Inc()
	return nil
}

// applyHints folds a status event's conversation and pricing hints into a
// record: conversation membership, category and cost.
func (p *Pipeline) applyHints(msg *model.Message, ev model.StatusEvent) {
	if ev.Conversation != nil {
		msg.ConversationID = ev.Conversation.ID
		if !ev.Conversation.ExpirationTimestamp.IsZero() {
			msg.ConversationExpiresAt = ev.Conversation.ExpirationTimestamp.Time
		}
	}

	if ev.Pricing == nil {
		return
	}

	if cat, ok := model.ParseCategory(strings.ToUpper(ev.Pricing.Category)); ok {
		msg.Category = cat
		msg.ClassificationConfidence = 0.98
		msg.ClassificationReason = "pricing category from status event"
	}

	if !ev.Pricing.Billable {
		msg.IsInFreeWindow = true
		msg.Cost = decimal.Zero
		return
	}

	msg.IsInFreeWindow = false
	if msg.Category == model.CategoryAuthentication {
		msg.Cost = decimal.Zero
		return
	}
	msg.Cost = p.table.UnitPrice(p.country, msg.Category)
}

// resolveWindow finds the active conversation window for a recipient: the
// most recent inbound message in the last 24 hours whose window is still
// open, or a freshly opened window when there is none. The read is not
// atomic; concurrent inbound bursts may briefly open two windows, which is
// accepted and self-heals on the next read.
func (p *Pipeline) resolveWindow(ctx context.Context, accountID, sender string, now time.Time) (model.ConversationWindow, error) {
	prev, err := p.store.LatestInboundSince(ctx, accountID, sender, now.Add(-windowDuration))
	if err != nil {
		return model.ConversationWindow{}, err
	}

	if prev != nil && prev.ConversationID != "" {
		window := model.ConversationWindow{
			ConversationID: prev.ConversationID,
			ExpiresAt:      prev.ConversationExpiresAt,
			Age:            now.Sub(prev.Timestamp),
		}
		if window.Open(now) {
			return window, nil
		}
	}

	return model.ConversationWindow{
		ConversationID: uuid.Must(uuid.NewV7()).String(),
		ExpiresAt:      now.Add(windowDuration),
		Age:            0,
	}, nil
}
