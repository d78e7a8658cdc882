// Package jobs runs background aggregation. The rollup job folds raw
// messages into daily and monthly aggregates so analytics and prediction
// read pre-computed data instead of rescanning the message table.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/messagewise/cost-insights/internal/calculator"
	"github.com/messagewise/cost-insights/internal/model"
	"github.com/messagewise/cost-insights/internal/pricing"
	"github.com/messagewise/cost-insights/internal/store"
	"github.com/messagewise/cost-insights/pkg/logger"
	"github.com/messagewise/cost-insights/pkg/metrics"
)

// defaultInterval re-runs the rollup hourly. Runs are idempotent upserts,
// so a generous cadence just keeps today's partial aggregate fresh.
const defaultInterval = time.Hour

// Rollup recomputes per-account daily and monthly aggregates.
type Rollup struct {
	messages store.MessageStore
	rollups  store.RollupStore
	calc     *calculator.Calculator
	table    *pricing.Table
	country  string
	log      *logger.Logger

	interval time.Duration
	now      func() time.Time
}

// NewRollup creates the job.
func NewRollup(messages store.MessageStore, rollups store.RollupStore, calc *calculator.Calculator, table *pricing.Table, country string, log *logger.Logger) *Rollup {
	return &Rollup{
		messages: messages,
		rollups:  rollups,
		calc:     calc,
		table:    table,
		country:  country,
		log:      log,
		interval: defaultInterval,
		now:      time.Now,
	}
}

// Start runs the job on its interval until the context is cancelled. The
// first run happens immediately so a fresh deployment has aggregates
// without waiting a full interval.
func (j *Rollup) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.runAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			j.log.Info("rollup job stopped")
			return
		case <-ticker.C:
			j.runAndLog(ctx)
		}
	}
}

func (j *Rollup) runAndLog(ctx context.Context) {
	// Yesterday is re-rolled alongside today so late status events that
	// landed after midnight are folded in.
	today := calculator.DayOf(j.now().UTC())
	for _, day := range []time.Time{today.AddDate(0, 0, -1), today} {
		if err := j.RunDay(ctx, day); err != nil {
			metrics.RollupRuns.WithLabelValues("error").Inc()
			j.log.Error("rollup run failed", zap.Time("day", day), zap.Error(err))
			continue
		}
		metrics.RollupRuns.WithLabelValues("ok").Inc()
	}
}

// RunDay recomputes the daily rollup for every account active on the given
// day, plus the monthly rollup for the month containing it. Safe to re-run.
func (j *Rollup) RunDay(ctx context.Context, day time.Time) error {
	day = calculator.DayOf(day.UTC())
	next := day.AddDate(0, 0, 1)

	accounts, err := j.messages.ActiveAccounts(ctx, day, next)
	if err != nil {
		return fmt.Errorf("list active accounts: %w", err)
	}

	for _, account := range accounts {
		if err := j.rollAccount(ctx, account, day, next, store.PeriodDaily); err != nil {
			return fmt.Errorf("daily rollup for %s: %w", account, err)
		}

		monthStart := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		monthEnd := monthStart.AddDate(0, 1, 0)
		if err := j.rollAccount(ctx, account, monthStart, monthEnd, store.PeriodMonthly); err != nil {
			return fmt.Errorf("monthly rollup for %s: %w", account, err)
		}
	}

	j.log.Debug("rollup complete",
		zap.Time("day", day),
		zap.Int("accounts", len(accounts)),
	)
	return nil
}

func (j *Rollup) rollAccount(ctx context.Context, account string, from, to time.Time, period store.PeriodType) error {
	msgs, err := j.messages.ListMessagesByPeriod(ctx, account, from, to)
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	opts := calculator.DefaultOptions(j.country)
	breakdown := j.calc.Calculate(msgs, opts)

	return j.rollups.UpsertRollup(ctx, &store.Rollup{
		AccountID:     account,
		PeriodStart:   from,
		PeriodType:    period,
		Breakdown:     breakdown,
		ActualSavings: j.avoidedCost(msgs),
		UpdatedAt:     j.now().UTC(),
	})
}

// avoidedCost sums the list price of outbound messages that billed nothing.
// This is what the account would have paid without free windows and the
// authentication exemption.
func (j *Rollup) avoidedCost(msgs []model.Message) decimal.Decimal {
	total := decimal.Zero
	for _, m := range msgs {
		if m.Direction != model.DirectionOutbound || !calculator.IsFree(m) {
			continue
		}
		total = total.Add(j.table.UnitPrice(j.country, m.Category))
	}
	return total.Round(4)
}

// History returns up to days of daily aggregates ending today, oldest
// first, in the shape the predictor consumes.
func (j *Rollup) History(ctx context.Context, accountID string, days int) ([]model.HistoricalDataPoint, error) {
	to := calculator.DayOf(j.now().UTC()).AddDate(0, 0, 1)
	from := to.AddDate(0, 0, -days)

	rollups, err := j.rollups.ListRollups(ctx, accountID, store.PeriodDaily, from, to)
	if err != nil {
		return nil, fmt.Errorf("list rollups: %w", err)
	}

	out := make([]model.HistoricalDataPoint, 0, len(rollups))
	for _, r := range rollups {
		out = append(out, model.HistoricalDataPoint{
			Date:          r.PeriodStart,
			TotalCost:     r.Breakdown.TotalCost,
			TotalMessages: r.Breakdown.MessageCount,
			FreeMessages:  r.Breakdown.FreeMessages,
			PaidMessages:  r.Breakdown.PaidMessages,
			Breakdown:     r.Breakdown.Categories,
			ActualSavings: r.ActualSavings,
		})
	}
	return out, nil
}
