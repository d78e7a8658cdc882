package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryCost is the per-category slice of a CostBreakdown.
type CategoryCost struct {
	Category             Category        `json:"category"`
	Count                int             `json:"count"`
	Cost                 decimal.Decimal `json:"cost"`
	AvgCostPerMessage    decimal.Decimal `json:"avg_cost_per_message"`
	PercentageOfMessages float64         `json:"percentage_of_messages"`
}

// CostBreakdown is a per-period aggregate over a set of messages. It is
// always derived from Message records and never stored as source of truth.
type CostBreakdown struct {
	TotalCost           decimal.Decimal `json:"total_cost"`
	Currency            string          `json:"currency"`
	MessageCount        int             `json:"message_count"`
	FreeMessages        int             `json:"free_messages"`
	PaidMessages        int             `json:"paid_messages"`
	UniqueConversations int             `json:"unique_conversations"`
	DiscountApplied     float64         `json:"discount_applied"`
	Categories          []CategoryCost  `json:"categories"`
}

// TrendDirection labels the sign of a period-over-period change.
type TrendDirection string

const (
	TrendUp     TrendDirection = "up"
	TrendDown   TrendDirection = "down"
	TrendStable TrendDirection = "stable"
)

// PeriodDelta describes the change of one metric between two periods.
type PeriodDelta struct {
	Previous      decimal.Decimal `json:"previous"`
	Current       decimal.Decimal `json:"current"`
	Delta         decimal.Decimal `json:"delta"`
	PercentChange float64         `json:"percent_change"`
	Trend         TrendDirection  `json:"trend"`
}

// PeriodComparison is the result of comparing two message sets.
type PeriodComparison struct {
	Cost     PeriodDelta `json:"cost"`
	Messages PeriodDelta `json:"messages"`
}

// SavingsEstimate itemizes the three savings sources the calculator models:
// moving marketing traffic into free windows, reclassifying mislabeled
// marketing as utility, and reaching the next volume-discount tier.
type SavingsEstimate struct {
	TimingSavings           decimal.Decimal `json:"timing_savings"`
	ReclassificationSavings decimal.Decimal `json:"reclassification_savings"`
	VolumeTierSavings       decimal.Decimal `json:"volume_tier_savings"`
	Total                   decimal.Decimal `json:"total"`
}

// MonthlyEstimate is a 30-day cost projection extrapolated from a sampled
// window of recent days.
type MonthlyEstimate struct {
	ProjectedCost     decimal.Decimal `json:"projected_cost"`
	ProjectedMessages int             `json:"projected_messages"`
	ProjectedSavings  decimal.Decimal `json:"projected_savings"`
	SampleDays        int             `json:"sample_days"`
}

// HistoricalDataPoint is one day's aggregate, produced by the rollup job and
// consumed read-only by the predictor.
type HistoricalDataPoint struct {
	Date          time.Time       `json:"date"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	TotalMessages int             `json:"total_messages"`
	FreeMessages  int             `json:"free_messages"`
	PaidMessages  int             `json:"paid_messages"`
	Breakdown     []CategoryCost  `json:"breakdown"`
	ActualSavings decimal.Decimal `json:"actual_savings"`
}
