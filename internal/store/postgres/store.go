// Package postgres implements the persistence contracts on pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/messagewise/cost-insights/internal/model"
	"github.com/messagewise/cost-insights/internal/store"
)

// Compile-time checks against the store contracts.
var (
	_ store.MessageStore = (*Store)(nil)
	_ store.RollupStore  = (*Store)(nil)
)

// Store is the Postgres-backed message and rollup store.
type Store struct {
	db *pgxpool.Pool
}

// New creates a store on an existing pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Ping verifies database connectivity; used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

const messageColumns = `
	id, account_id, external_id, sender, direction, category, type, status,
	timestamp, conversation_id, conversation_expires_at, is_in_free_window,
	cost, classification_confidence, classification_reason,
	created_at, updated_at`

// UpsertMessage inserts a message or, when the external id already exists,
// updates the mutable fields in place. The external id is the dedup key:
// two sightings of the same id can never produce two rows.
func (s *Store) UpsertMessage(ctx context.Context, m *model.Message) error {
	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (external_id) DO UPDATE SET
			status = EXCLUDED.status,
			category = EXCLUDED.category,
			type = EXCLUDED.type,
			conversation_id = EXCLUDED.conversation_id,
			conversation_expires_at = EXCLUDED.conversation_expires_at,
			is_in_free_window = EXCLUDED.is_in_free_window,
			cost = EXCLUDED.cost,
			classification_confidence = EXCLUDED.classification_confidence,
			classification_reason = EXCLUDED.classification_reason,
			updated_at = EXCLUDED.updated_at`

	var expiresAt *time.Time
	if !m.ConversationExpiresAt.IsZero() {
		expiresAt = &m.ConversationExpiresAt
	}

	_, err := s.db.Exec(ctx, query,
		m.ID,
		m.AccountID,
		m.ExternalID,
		nullable(m.Sender),
		m.Direction,
		m.Category,
		m.Type,
		m.Status,
		m.Timestamp,
		nullable(m.ConversationID),
		expiresAt,
		m.IsInFreeWindow,
		m.Cost,
		m.ClassificationConfidence,
		m.ClassificationReason,
		m.CreatedAt,
		m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert message %s: %w", m.ExternalID, err)
	}
	return nil
}

// GetMessageByExternalID returns the message for an external id, or
// (nil, nil) when no record exists.
func (s *Store) GetMessageByExternalID(ctx context.Context, accountID, externalID string) (*model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE account_id = $1 AND external_id = $2`

	m, err := scanMessage(s.db.QueryRow(ctx, query, accountID, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get message %s: %w", externalID, err)
	}
	return m, nil
}

// ListMessagesByPeriod returns an account's messages in [from, to) ordered
// by timestamp.
func (s *Store) ListMessagesByPeriod(ctx context.Context, accountID string, from, to time.Time) ([]model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE account_id = $1 AND timestamp >= $2 AND timestamp < $3
		ORDER BY timestamp`

	rows, err := s.db.Query(ctx, query, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// LatestInboundSince returns the most recent inbound message from a sender
// after the given instant, or (nil, nil) when there is none. It feeds
// conversation-window resolution.
func (s *Store) LatestInboundSince(ctx context.Context, accountID, sender string, since time.Time) (*model.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE account_id = $1
		  AND sender = $2
		  AND direction = $3
		  AND timestamp >= $4
		  AND conversation_id IS NOT NULL
		ORDER BY timestamp DESC
		LIMIT 1`

	m, err := scanMessage(s.db.QueryRow(ctx, query, accountID, sender, model.DirectionInbound, since))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest inbound for %s: %w", sender, err)
	}
	return m, nil
}

// ActiveAccounts returns the distinct account ids with at least one message
// in [from, to). The rollup job uses it to scope each run.
func (s *Store) ActiveAccounts(ctx context.Context, from, to time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx,
		`SELECT DISTINCT account_id FROM messages WHERE timestamp >= $1 AND timestamp < $2`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("active accounts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan account id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// UpsertRollup stores one aggregate, replacing any previous run for the
// same (account, period start, period type). Retrying a rollup job is safe.
func (s *Store) UpsertRollup(ctx context.Context, r *store.Rollup) error {
	breakdown, err := json.Marshal(r.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}

	query := `
		INSERT INTO rollups (account_id, period_start, period_type, breakdown, actual_savings, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (account_id, period_start, period_type) DO UPDATE SET
			breakdown = EXCLUDED.breakdown,
			actual_savings = EXCLUDED.actual_savings,
			updated_at = EXCLUDED.updated_at`

	_, err = s.db.Exec(ctx, query, r.AccountID, r.PeriodStart, r.PeriodType, breakdown, r.ActualSavings, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert rollup %s/%s: %w", r.AccountID, r.PeriodStart.Format("2006-01-02"), err)
	}
	return nil
}

// ListRollups returns an account's rollups of one granularity in
// [from, to) ordered by period start.
func (s *Store) ListRollups(ctx context.Context, accountID string, periodType store.PeriodType, from, to time.Time) ([]store.Rollup, error) {
	query := `
		SELECT account_id, period_start, period_type, breakdown, actual_savings, updated_at
		FROM rollups
		WHERE account_id = $1 AND period_type = $2
		  AND period_start >= $3 AND period_start < $4
		ORDER BY period_start`

	rows, err := s.db.Query(ctx, query, accountID, periodType, from, to)
	if err != nil {
		return nil, fmt.Errorf("list rollups: %w", err)
	}
	defer rows.Close()

	var out []store.Rollup
	for rows.Next() {
		var r store.Rollup
		var breakdown []byte
		if err := rows.Scan(&r.AccountID, &r.PeriodStart, &r.PeriodType, &breakdown, &r.ActualSavings, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan rollup: %w", err)
		}
		if err := json.Unmarshal(breakdown, &r.Breakdown); err != nil {
			return nil, fmt.Errorf("decode breakdown: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*model.Message, error) {
	var m model.Message
	var sender *string
	var conversationID *string
	var expiresAt *time.Time

	err := row.Scan(
		&m.ID,
		&m.AccountID,
		&m.ExternalID,
		&sender,
		&m.Direction,
		&m.Category,
		&m.Type,
		&m.Status,
		&m.Timestamp,
		&conversationID,
		&expiresAt,
		&m.IsInFreeWindow,
		&m.Cost,
		&m.ClassificationConfidence,
		&m.ClassificationReason,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if sender != nil {
		m.Sender = *sender
	}
	if conversationID != nil {
		m.ConversationID = *conversationID
	}
	if expiresAt != nil {
		m.ConversationExpiresAt = *expiresAt
	}
	return &m, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
