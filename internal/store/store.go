// Package store defines the persistence contracts the service depends on.
// Implementations live in subpackages.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/messagewise/cost-insights/internal/model"
)

// PeriodType labels an aggregate rollup's granularity.
type PeriodType string

const (
	PeriodDaily   PeriodType = "daily"
	PeriodMonthly PeriodType = "monthly"
)

// Rollup is one persisted aggregate, unique per
// (account, period start, period type) so re-running a job upserts.
type Rollup struct {
	AccountID   string
	PeriodStart time.Time
	PeriodType  PeriodType
	Breakdown   model.CostBreakdown

	// ActualSavings is the cost avoided by messages that billed nothing
	// (free windows plus the authentication exemption). It is computed from
	// raw messages at rollup time because it cannot be derived from the
	// breakdown alone.
	ActualSavings decimal.Decimal

	UpdatedAt time.Time
}

// MessageStore persists Message records keyed by external id. Single-record
// lookups return (nil, nil) when no record exists; absence is an expected
// outcome for the ingestion pipeline, not an error.
type MessageStore interface {
	UpsertMessage(ctx context.Context, m *model.Message) error
	GetMessageByExternalID(ctx context.Context, accountID, externalID string) (*model.Message, error)
	ListMessagesByPeriod(ctx context.Context, accountID string, from, to time.Time) ([]model.Message, error)
	LatestInboundSince(ctx context.Context, accountID, sender string, since time.Time) (*model.Message, error)
	ActiveAccounts(ctx context.Context, from, to time.Time) ([]string, error)
}

// RollupStore persists daily/monthly aggregates idempotently.
type RollupStore interface {
	UpsertRollup(ctx context.Context, r *Rollup) error
	ListRollups(ctx context.Context, accountID string, periodType PeriodType, from, to time.Time) ([]Rollup, error)
}

// IdempotencyStore is the TTL conditional-set marker store.
type IdempotencyStore interface {
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
