package optimizer

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/messagewise/cost-insights/internal/calculator"
	"github.com/messagewise/cost-insights/internal/model"
	"github.com/messagewise/cost-insights/internal/pricing"
)

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

func paidMarketing(i, hour int) model.Message {
	return model.Message{
		ExternalID:     fmt.Sprintf("wamid.%d", i),
		Direction:      model.DirectionOutbound,
		Category:       model.CategoryMarketing,
		ConversationID: fmt.Sprintf("conv-%d", i),
		Timestamp:      time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC),
	}
}

func analyze(t *testing.T, msgs []model.Message) ([]model.Recommendation, model.CostBreakdown) {
	t.Helper()
	table := testTable()
	breakdown := calculator.New(table).Calculate(msgs, calculator.DefaultOptions(""))
	return New(table).GenerateRecommendations(msgs, breakdown, ""), breakdown
}

func TestEmptyInputYieldsNothing(t *testing.T) {
	table := testTable()
	opt := New(table)

	recs := opt.GenerateRecommendations(nil, model.CostBreakdown{}, "")
	require.Empty(t, recs)

	// All-free traffic has no cost worth optimizing.
	free := []model.Message{{Direction: model.DirectionInbound, Category: model.CategoryService}}
	breakdown := calculator.New(table).Calculate(free, calculator.DefaultOptions(""))
	require.Empty(t, opt.GenerateRecommendations(free, breakdown, ""))
}

func TestTimingAndReclassificationDetectors(t *testing.T) {
	msgs := make([]model.Message, 100)
	for i := range msgs {
		msgs[i] = paidMarketing(i, 9+i%3)
	}

	recs, _ := analyze(t, msgs)
	require.NotEmpty(t, recs)

	byCat := map[model.RecommendationCategory]model.Recommendation{}
	for _, r := range recs {
		if _, seen := byCat[r.Category]; !seen {
			byCat[r.Category] = r
		}
	}

	timing, ok := byCat[model.RecommendationTiming]
	require.True(t, ok)
	// 100 paid marketing x 0.05 = 5.00, 100% of total cost -> high priority.
	require.True(t, timing.PotentialSavings.Equal(decimal.NewFromInt(5)), "got %s", timing.PotentialSavings)
	require.Equal(t, model.PriorityHigh, timing.Priority)

	reclass, ok := byCat[model.RecommendationClassification]
	require.True(t, ok)
	// round(100 x 0.3) = 30 messages x (0.05 - 0.025) = 0.75.
	require.True(t, reclass.PotentialSavings.Equal(decimal.NewFromFloat(0.75)), "got %s", reclass.PotentialSavings)
}

func TestRecommendationsSortedWithStableIDs(t *testing.T) {
	msgs := make([]model.Message, 100)
	for i := range msgs {
		msgs[i] = paidMarketing(i, 9+i%3)
	}

	recs, _ := analyze(t, msgs)
	require.GreaterOrEqual(t, len(recs), 2)
	for i := 1; i < len(recs); i++ {
		require.True(t, recs[i-1].PotentialSavings.GreaterThanOrEqual(recs[i].PotentialSavings),
			"recommendations must be sorted by savings descending")
		require.Equal(t, fmt.Sprintf("rec-%02d", i+1), recs[i].ID)
	}
	require.Equal(t, "rec-01", recs[0].ID)
	for _, r := range recs {
		require.False(t, r.PotentialSavings.IsNegative())
	}
}

func TestConversationUtilizationDetector(t *testing.T) {
	// One message per conversation, nothing in a free window: avg 1.0 and
	// utilization 0.
	msgs := make([]model.Message, 20)
	for i := range msgs {
		m := paidMarketing(i, 9+i%12)
		m.Category = model.CategoryUtility
		msgs[i] = m
	}

	recs, breakdown := analyze(t, msgs)
	var found *model.Recommendation
	for i := range recs {
		if recs[i].Category == model.RecommendationConversation {
			found = &recs[i]
		}
	}
	require.NotNil(t, found)
	want := breakdown.TotalCost.Mul(decimal.NewFromFloat(0.15)).Round(2)
	require.True(t, found.PotentialSavings.Equal(want), "got %s", found.PotentialSavings)
	require.Equal(t, model.PriorityMedium, found.Priority)
}

func TestVolumeTierProximityDetector(t *testing.T) {
	// 950 conversations is 95% of the 1000 threshold: high priority.
	msgs := make([]model.Message, 950)
	for i := range msgs {
		msgs[i] = paidMarketing(i, 9+i%12)
	}

	recs, breakdown := analyze(t, msgs)
	var found *model.Recommendation
	for i := range recs {
		if recs[i].Category == model.RecommendationVolume {
			found = &recs[i]
		}
	}
	require.NotNil(t, found)
	require.Equal(t, model.PriorityHigh, found.Priority)
	want := breakdown.TotalCost.Mul(decimal.NewFromFloat(0.05)).Round(2)
	require.True(t, found.PotentialSavings.Equal(want), "got %s", found.PotentialSavings)
}

func TestPeakConcentrationDetector(t *testing.T) {
	// Everything lands at 9am: busiest 3 hours carry 100% of volume.
	msgs := make([]model.Message, 50)
	for i := range msgs {
		msgs[i] = paidMarketing(i, 9)
	}

	recs, _ := analyze(t, msgs)
	var found bool
	for _, r := range recs {
		if r.Priority == model.PriorityLow && r.Category == model.RecommendationTiming {
			found = true
		}
	}
	require.True(t, found, "peak concentration recommendation expected")
}

func TestOptimizationScoreBounds(t *testing.T) {
	table := testTable()
	opt := New(table)
	calc := calculator.New(table)

	sets := [][]model.Message{
		nil,
		{{Direction: model.DirectionInbound, Category: model.CategoryService}},
	}

	// Worst case traffic: all paid marketing, one message per conversation.
	worst := make([]model.Message, 40)
	for i := range worst {
		worst[i] = paidMarketing(i, 9)
	}
	sets = append(sets, worst)

	// Healthy traffic: auth-heavy, window-riding replies.
	healthy := make([]model.Message, 40)
	for i := range healthy {
		m := paidMarketing(i, 9+i%12)
		m.Category = model.CategoryAuthentication
		m.IsInFreeWindow = true
		m.ConversationID = fmt.Sprintf("conv-%d", i%10)
		healthy[i] = m
	}
	sets = append(sets, healthy)

	for _, msgs := range sets {
		score := opt.OptimizationScore(msgs, calc.Calculate(msgs, calculator.DefaultOptions("")))
		require.GreaterOrEqual(t, score, 0)
		require.LessOrEqual(t, score, 100)
	}

	require.Equal(t, 100, opt.OptimizationScore(nil, model.CostBreakdown{}))
}

func TestOptimizationScorePenalties(t *testing.T) {
	table := testTable()
	opt := New(table)
	calc := calculator.New(table)

	// All paid marketing, 1 msg/conversation, no free windows:
	// 100 - 30 - 15 - 20 = 35.
	msgs := make([]model.Message, 10)
	for i := range msgs {
		msgs[i] = paidMarketing(i, 9)
	}
	score := opt.OptimizationScore(msgs, calc.Calculate(msgs, calculator.DefaultOptions("")))
	require.Equal(t, 35, score)

	// Same but >10% authentication share adds 5 back.
	msgs[0].Category = model.CategoryAuthentication
	msgs[1].Category = model.CategoryAuthentication
	score = opt.OptimizationScore(msgs, calc.Calculate(msgs, calculator.DefaultOptions("")))
	// 100 - 30*(8/10) - 15 - 20 + 5 = 46.
	require.Equal(t, 46, score)
}
