// Package calculator computes aggregate message cost under the free-window,
// per-category and volume-discount pricing model. All functions are pure:
// they take messages and configuration and return derived aggregates.
package calculator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/messagewise/cost-insights/internal/model"
	"github.com/messagewise/cost-insights/internal/pricing"
)

// moneyPlaces is the rounding precision for breakdown money values.
const moneyPlaces = 4

// Options controls one calculation run.
type Options struct {
	Country              string
	Currency             string
	ApplyVolumeDiscounts bool
	IncludeFreeTier      bool
}

// DefaultOptions returns the standard calculation options: volume discounts
// and free-tier handling both on.
func DefaultOptions(country string) Options {
	return Options{
		Country:              country,
		Currency:             "USD",
		ApplyVolumeDiscounts: true,
		IncludeFreeTier:      true,
	}
}

// Calculator prices message sets against a pricing table. Stateless; safe
// for concurrent use.
type Calculator struct {
	table *pricing.Table
}

// New returns a calculator bound to the given pricing table.
func New(table *pricing.Table) *Calculator {
	return &Calculator{table: table}
}

// IsFree reports whether a message incurs no cost: inbound traffic,
// authentication messages and messages inside an open conversation window
// are all free.
func IsFree(m model.Message) bool {
	return m.Direction == model.DirectionInbound ||
		m.Category == model.CategoryAuthentication ||
		m.IsInFreeWindow
}

// Calculate prices a message set and returns the per-period breakdown.
// Every known category appears in the result even with a zero count.
func (c *Calculator) Calculate(messages []model.Message, opts Options) model.CostBreakdown {
	counts := make(map[model.Category]int, len(model.Categories))
	costs := make(map[model.Category]decimal.Decimal, len(model.Categories))
	for _, cat := range model.Categories {
		costs[cat] = decimal.Zero
	}

	conversations := make(map[string]struct{})
	free, paid := 0, 0

	for _, m := range messages {
		counts[m.Category]++
		if m.ConversationID != "" {
			conversations[m.ConversationID] = struct{}{}
		}

		if opts.IncludeFreeTier && IsFree(m) {
			free++
			continue
		}
		paid++
		costs[m.Category] = costs[m.Category].Add(c.table.UnitPrice(opts.Country, m.Category))
	}

	tier := c.table.TierFor(len(conversations))
	discount := 0.0
	if opts.ApplyVolumeDiscounts && tier.Discount > 0 {
		discount = tier.Discount
		multiplier := decimal.NewFromFloat(1 - tier.Discount)
		for cat := range costs {
			costs[cat] = costs[cat].Mul(multiplier)
		}
	}

	total := decimal.Zero
	categories := make([]model.CategoryCost, 0, len(model.Categories))
	for _, cat := range model.Categories {
		cost := costs[cat].Round(moneyPlaces)
		total = total.Add(costs[cat])

		avg := decimal.Zero
		pct := 0.0
		if counts[cat] > 0 {
			avg = cost.Div(decimal.NewFromInt(int64(counts[cat]))).Round(moneyPlaces)
		}
		if len(messages) > 0 {
			pct = float64(counts[cat]) / float64(len(messages)) * 100
		}

		categories = append(categories, model.CategoryCost{
			Category:             cat,
			Count:                counts[cat],
			Cost:                 cost,
			AvgCostPerMessage:    avg,
			PercentageOfMessages: pct,
		})
	}

	currency := opts.Currency
	if currency == "" {
		currency = c.table.Currency
	}

	return model.CostBreakdown{
		TotalCost:           total.Round(moneyPlaces),
		Currency:            currency,
		MessageCount:        len(messages),
		FreeMessages:        free,
		PaidMessages:        paid,
		UniqueConversations: len(conversations),
		DiscountApplied:     discount,
		Categories:          categories,
	}
}

// CalculateDailyCosts groups messages by UTC calendar day and runs the full
// calculation per day.
func (c *Calculator) CalculateDailyCosts(messages []model.Message, opts Options) map[string]model.CostBreakdown {
	byDay := make(map[string][]model.Message)
	for _, m := range messages {
		day := m.Timestamp.UTC().Format("2006-01-02")
		byDay[day] = append(byDay[day], m)
	}

	out := make(map[string]model.CostBreakdown, len(byDay))
	for day, msgs := range byDay {
		out[day] = c.Calculate(msgs, opts)
	}
	return out
}

// ComparePeriods calculates both message sets and returns the deltas for
// cost and message count. An empty previous period yields a 100% change
// when the current period has volume, otherwise 0%.
func (c *Calculator) ComparePeriods(previous, current []model.Message, opts Options) model.PeriodComparison {
	prev := c.Calculate(previous, opts)
	cur := c.Calculate(current, opts)

	return model.PeriodComparison{
		Cost:     delta(prev.TotalCost, cur.TotalCost),
		Messages: delta(decimal.NewFromInt(int64(prev.MessageCount)), decimal.NewFromInt(int64(cur.MessageCount))),
	}
}

func delta(previous, current decimal.Decimal) model.PeriodDelta {
	diff := current.Sub(previous)

	var pct float64
	switch {
	case previous.IsZero() && current.IsPositive():
		pct = 100
	case previous.IsZero():
		pct = 0
	default:
		pct, _ = diff.Div(previous).Mul(decimal.NewFromInt(100)).Float64()
	}

	trend := model.TrendStable
	if diff.IsPositive() {
		trend = model.TrendUp
	} else if diff.IsNegative() {
		trend = model.TrendDown
	}

	return model.PeriodDelta{
		Previous:      previous,
		Current:       current,
		Delta:         diff,
		PercentChange: pct,
		Trend:         trend,
	}
}

// CalculatePotentialSavings estimates the savings reachable from the three
// known levers: moving outside-window marketing into free windows,
// reclassifying the share of it that is really transactional, and the
// marginal discount from reaching the next volume tier.
func (c *Calculator) CalculatePotentialSavings(messages []model.Message, opts Options) model.SavingsEstimate {
	breakdown := c.Calculate(messages, opts)

	paidMarketing := 0
	for _, m := range messages {
		if m.Category == model.CategoryMarketing && m.Direction == model.DirectionOutbound && !m.IsInFreeWindow {
			paidMarketing++
		}
	}

	marketingRate := c.table.UnitPrice(opts.Country, model.CategoryMarketing)
	utilityRate := c.table.UnitPrice(opts.Country, model.CategoryUtility)

	timing := marketingRate.Mul(decimal.NewFromInt(int64(paidMarketing)))

	reclassifiable := decimal.NewFromInt(int64(paidMarketing)).
		Mul(decimal.NewFromFloat(c.table.ReclassifiableShare)).
		Round(0)
	reclass := reclassifiable.Mul(marketingRate.Sub(utilityRate))
	if reclass.IsNegative() {
		reclass = decimal.Zero
	}

	tierGain := decimal.Zero
	currentTier := c.table.TierFor(breakdown.UniqueConversations)
	if next, ok := c.table.NextTier(currentTier); ok {
		marginal := decimal.NewFromFloat(next.Discount - currentTier.Discount)
		tierGain = breakdown.TotalCost.Mul(marginal)
	}

	timing = timing.Round(moneyPlaces)
	reclass = reclass.Round(moneyPlaces)
	tierGain = tierGain.Round(moneyPlaces)

	return model.SavingsEstimate{
		TimingSavings:           timing,
		ReclassificationSavings: reclass,
		VolumeTierSavings:       tierGain,
		Total:                   timing.Add(reclass).Add(tierGain),
	}
}

// EstimateMonthlyCost projects a 30-day cost from a sampled window of
// recent messages. sampleDays is the number of calendar days the sample
// spans; when 0 it is derived from the messages' UTC day spread.
func (c *Calculator) EstimateMonthlyCost(messages []model.Message, sampleDays int, opts Options) model.MonthlyEstimate {
	if sampleDays <= 0 {
		sampleDays = daySpread(messages)
	}
	if sampleDays <= 0 || len(messages) == 0 {
		return model.MonthlyEstimate{SampleDays: sampleDays}
	}

	breakdown := c.Calculate(messages, opts)
	savings := c.CalculatePotentialSavings(messages, opts)

	scale := decimal.NewFromInt(30).Div(decimal.NewFromInt(int64(sampleDays)))

	projectedCost := breakdown.TotalCost.Mul(scale).Round(moneyPlaces)
	projectedSavings := savings.Total.Mul(scale).Round(moneyPlaces)
	projectedMessages := int(float64(breakdown.MessageCount) / float64(sampleDays) * 30)

	return model.MonthlyEstimate{
		ProjectedCost:     projectedCost,
		ProjectedMessages: projectedMessages,
		ProjectedSavings:  projectedSavings,
		SampleDays:        sampleDays,
	}
}

// daySpread counts distinct UTC calendar days across the messages.
func daySpread(messages []model.Message) int {
	days := make(map[string]struct{})
	for _, m := range messages {
		days[m.Timestamp.UTC().Format("2006-01-02")] = struct{}{}
	}
	return len(days)
}

// SortedDays returns the keys of a daily breakdown map in ascending order.
// Handy for rendering and for building predictor history.
func SortedDays(daily map[string]model.CostBreakdown) []string {
	days := make([]string, 0, len(daily))
	for day := range daily {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

// DayOf truncates a timestamp to its UTC calendar day.
func DayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
