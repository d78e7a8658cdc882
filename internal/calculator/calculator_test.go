package calculator

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/messagewise/cost-insights/internal/model"
	"github.com/messagewise/cost-insights/internal/pricing"
)

// testTable pins marketing at 0.05 and utility at 0.025 so expected values
// stay readable.
func testTable() *pricing.Table {
	table := pricing.DefaultTable()
	table.ByCountry = map[string]pricing.Rates{}
	table.Default = pricing.Rates{
		model.CategoryAuthentication: decimal.NewFromFloat(0.03),
		model.CategoryMarketing:      decimal.NewFromFloat(0.05),
		model.CategoryUtility:        decimal.NewFromFloat(0.025),
		model.CategoryService:        decimal.NewFromFloat(0.015),
	}
	return table
}

func outboundMarketing(i int) model.Message {
	return model.Message{
		ExternalID: fmt.Sprintf("wamid.%d", i),
		Direction:  model.DirectionOutbound,
		Category:   model.CategoryMarketing,
		Timestamp:  time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestCalculateHundredPaidMarketingMessages(t *testing.T) {
	calc := New(testTable())

	msgs := make([]model.Message, 100)
	for i := range msgs {
		msgs[i] = outboundMarketing(i)
	}

	b := calc.Calculate(msgs, DefaultOptions(""))

	require.Equal(t, 100, b.MessageCount)
	require.Equal(t, 0, b.FreeMessages)
	require.Equal(t, 100, b.PaidMessages)
	require.Equal(t, 0, b.UniqueConversations)
	require.Equal(t, 0.0, b.DiscountApplied)
	require.True(t, b.TotalCost.Equal(decimal.NewFromFloat(5.00)), "got %s", b.TotalCost)
}

func TestCalculateAllFree(t *testing.T) {
	calc := New(testTable())

	msgs := []model.Message{
		{ExternalID: "a", Direction: model.DirectionInbound, Category: model.CategoryService},
		{ExternalID: "b", Direction: model.DirectionOutbound, Category: model.CategoryAuthentication},
		{ExternalID: "c", Direction: model.DirectionOutbound, Category: model.CategoryMarketing, IsInFreeWindow: true},
	}

	b := calc.Calculate(msgs, DefaultOptions(""))

	require.Equal(t, 3, b.FreeMessages)
	require.Equal(t, 0, b.PaidMessages)
	require.True(t, b.TotalCost.IsZero())
}

func TestBreakdownInvariants(t *testing.T) {
	calc := New(testTable())

	sets := [][]model.Message{
		nil,
		{outboundMarketing(1)},
		{
			{ExternalID: "a", Direction: model.DirectionInbound, Category: model.CategoryService, ConversationID: "c1"},
			{ExternalID: "b", Direction: model.DirectionOutbound, Category: model.CategoryUtility, ConversationID: "c1"},
			{ExternalID: "c", Direction: model.DirectionOutbound, Category: model.Category("UNKNOWN")},
		},
	}

	for _, msgs := range sets {
		b := calc.Calculate(msgs, DefaultOptions(""))
		require.Equal(t, b.MessageCount, b.FreeMessages+b.PaidMessages)
		require.False(t, b.TotalCost.IsNegative())
		require.Len(t, b.Categories, len(model.Categories), "every category present even with zero count")
	}
}

func TestUnknownCategoryCostsNothing(t *testing.T) {
	calc := New(testTable())

	b := calc.Calculate([]model.Message{
		{ExternalID: "x", Direction: model.DirectionOutbound, Category: model.Category("MYSTERY")},
	}, DefaultOptions(""))

	require.Equal(t, 1, b.PaidMessages)
	require.True(t, b.TotalCost.IsZero())
}

func TestVolumeDiscountAtTierBoundary(t *testing.T) {
	calc := New(testTable())

	build := func(conversations int) []model.Message {
		msgs := make([]model.Message, conversations)
		for i := range msgs {
			m := outboundMarketing(i)
			m.ConversationID = fmt.Sprintf("conv-%d", i)
			msgs[i] = m
		}
		return msgs
	}

	rate := decimal.NewFromFloat(0.05)

	// 999 conversations: lowest tier, no discount.
	b := calc.Calculate(build(999), DefaultOptions(""))
	require.Equal(t, 0.0, b.DiscountApplied)
	require.True(t, b.TotalCost.Equal(rate.Mul(decimal.NewFromInt(999))), "got %s", b.TotalCost)

	// Exactly at the 1000 threshold: the 5% tier applies.
	b = calc.Calculate(build(1000), DefaultOptions(""))
	require.Equal(t, 0.05, b.DiscountApplied)
	want := rate.Mul(decimal.NewFromInt(1000)).Mul(decimal.NewFromFloat(0.95))
	require.True(t, b.TotalCost.Equal(want), "got %s", b.TotalCost)

	// One past the threshold stays in the tier.
	b = calc.Calculate(build(1001), DefaultOptions(""))
	require.Equal(t, 0.05, b.DiscountApplied)

	// Discounts can be disabled.
	opts := DefaultOptions("")
	opts.ApplyVolumeDiscounts = false
	b = calc.Calculate(build(1000), opts)
	require.Equal(t, 0.0, b.DiscountApplied)
}

func TestCalculateDailyCosts(t *testing.T) {
	calc := New(testTable())

	msgs := []model.Message{
		{ExternalID: "a", Direction: model.DirectionOutbound, Category: model.CategoryMarketing, Timestamp: time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)},
		{ExternalID: "b", Direction: model.DirectionOutbound, Category: model.CategoryMarketing, Timestamp: time.Date(2026, 3, 11, 0, 1, 0, 0, time.UTC)},
		{ExternalID: "c", Direction: model.DirectionInbound, Category: model.CategoryService, Timestamp: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)},
	}

	daily := calc.CalculateDailyCosts(msgs, DefaultOptions(""))
	require.Len(t, daily, 2)
	require.Equal(t, 1, daily["2026-03-10"].MessageCount)
	require.Equal(t, 2, daily["2026-03-11"].MessageCount)
	require.Equal(t, 1, daily["2026-03-11"].FreeMessages)
	require.Equal(t, []string{"2026-03-10", "2026-03-11"}, SortedDays(daily))
}

func TestComparePeriods(t *testing.T) {
	calc := New(testTable())

	prev := []model.Message{outboundMarketing(1)}
	cur := []model.Message{outboundMarketing(2), outboundMarketing(3)}

	cmp := calc.ComparePeriods(prev, cur, DefaultOptions(""))
	require.Equal(t, model.TrendUp, cmp.Cost.Trend)
	require.InDelta(t, 100.0, cmp.Cost.PercentChange, 1e-9)
	require.Equal(t, model.TrendUp, cmp.Messages.Trend)

	// Empty previous period with current volume: 100% by convention.
	cmp = calc.ComparePeriods(nil, cur, DefaultOptions(""))
	require.InDelta(t, 100.0, cmp.Cost.PercentChange, 1e-9)

	// Both empty: 0% and stable.
	cmp = calc.ComparePeriods(nil, nil, DefaultOptions(""))
	require.InDelta(t, 0.0, cmp.Cost.PercentChange, 1e-9)
	require.Equal(t, model.TrendStable, cmp.Cost.Trend)
}

func TestCalculatePotentialSavings(t *testing.T) {
	calc := New(testTable())

	msgs := make([]model.Message, 10)
	for i := range msgs {
		msgs[i] = outboundMarketing(i)
	}

	est := calc.CalculatePotentialSavings(msgs, DefaultOptions(""))

	// (i) 10 paid marketing x 0.05.
	require.True(t, est.TimingSavings.Equal(decimal.NewFromFloat(0.5)), "got %s", est.TimingSavings)
	// (ii) round(10 x 0.3) = 3 reclassified x (0.05 - 0.025).
	require.True(t, est.ReclassificationSavings.Equal(decimal.NewFromFloat(0.075)), "got %s", est.ReclassificationSavings)
	// (iii) 0 conversations -> next tier is 5% of the 0.50 total.
	require.True(t, est.VolumeTierSavings.Equal(decimal.NewFromFloat(0.025)), "got %s", est.VolumeTierSavings)
	require.True(t, est.Total.Equal(decimal.NewFromFloat(0.6)), "got %s", est.Total)
}

func TestEstimateMonthlyCost(t *testing.T) {
	calc := New(testTable())

	// 10 paid marketing messages spread over 5 days: 0.10/day -> 3.00/month.
	msgs := make([]model.Message, 10)
	for i := range msgs {
		m := outboundMarketing(i)
		m.Timestamp = time.Date(2026, 3, 1+i/2, 10, 0, 0, 0, time.UTC)
		msgs[i] = m
	}

	est := calc.EstimateMonthlyCost(msgs, 0, DefaultOptions(""))
	require.Equal(t, 5, est.SampleDays)
	require.Equal(t, 60, est.ProjectedMessages)
	require.True(t, est.ProjectedCost.Equal(decimal.NewFromFloat(3.00)), "got %s", est.ProjectedCost)
	require.True(t, est.ProjectedSavings.Equal(decimal.NewFromFloat(3.6)), "got %s", est.ProjectedSavings)

	empty := calc.EstimateMonthlyCost(nil, 0, DefaultOptions(""))
	require.True(t, empty.ProjectedCost.IsZero())
}
