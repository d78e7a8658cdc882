// Package predictor extrapolates cost and savings trends from historical
// daily aggregates. It degrades to conservative defaults rather than fail
// when history is short or noisy.
package predictor

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/messagewise/cost-insights/internal/model"
	"github.com/messagewise/cost-insights/internal/pricing"
)

const (
	// minHistoryPoints is the history size below which the predictor
	// returns the conservative default instead of fitting a trend.
	minHistoryPoints = 3
	// trendDamping halves the fitted slope before projecting it forward.
	trendDamping = 0.5
	// trendThreshold is the slope magnitude that separates a stable
	// series from an increasing or decreasing one.
	trendThreshold = 0.1

	minConfidence = 0.3
	maxConfidence = 0.95
)

// Predictor fits linear trends over daily history. Stateless.
type Predictor struct {
	table *pricing.Table
}

// New returns a predictor bound to the given pricing table.
func New(table *pricing.Table) *Predictor {
	return &Predictor{table: table}
}

// PredictFuture estimates the next daysToPredict days of cost, volume and
// savings from daily history. With fewer than three points it returns the
// conservative default: a flat 30-day average with 20% assumed savings.
func (p *Predictor) PredictFuture(history []model.HistoricalDataPoint, daysToPredict int) model.Prediction {
	if daysToPredict <= 0 {
		daysToPredict = 30
	}

	if len(history) < minHistoryPoints {
		return p.conservativeDefault(history)
	}

	sorted := make([]model.HistoricalDataPoint, len(history))
	copy(sorted, history)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	costs := make([]float64, len(sorted))
	counts := make([]float64, len(sorted))
	savings := make([]float64, len(sorted))
	for i, h := range sorted {
		costs[i], _ = h.TotalCost.Float64()
		counts[i] = float64(h.TotalMessages)
		savings[i], _ = h.ActualSavings.Float64()
	}

	costSlope := olsSlope(costs)
	countSlope := olsSlope(counts)
	savingsSlope := olsSlope(savings)

	project := func(series []float64, slope float64) float64 {
		base := 30 * mean(series)
		return math.Max(0, base+slope*trendDamping*float64(daysToPredict))
	}

	confidence := math.Max(minConfidence, math.Min(maxConfidence, 1-coefficientOfVariation(costs)))
	confidence += math.Min(float64(len(sorted))*0.01, 0.1)

	trend := "stable"
	switch {
	case costSlope > trendThreshold:
		trend = "increasing"
	case costSlope < -trendThreshold:
		trend = "decreasing"
	}

	return model.Prediction{
		PredictedMonthlyCost:     decimal.NewFromFloat(project(costs, costSlope)).Round(2),
		PredictedMonthlyMessages: int(math.Round(project(counts, countSlope))),
		PredictedSavings:         decimal.NewFromFloat(project(savings, savingsSlope)).Round(2),
		ConfidenceScore:          confidence,
		Trend:                    trend,
		Recommendations:          p.adviceFor(sorted, costSlope),
	}
}

// conservativeDefault is the insufficient-history fallback.
func (p *Predictor) conservativeDefault(history []model.HistoricalDataPoint) model.Prediction {
	avgCost := decimal.Zero
	avgMessages := 0.0
	if len(history) > 0 {
		total := decimal.Zero
		msgs := 0
		for _, h := range history {
			total = total.Add(h.TotalCost)
			msgs += h.TotalMessages
		}
		avgCost = total.Div(decimal.NewFromInt(int64(len(history))))
		avgMessages = float64(msgs) / float64(len(history))
	}

	predicted := avgCost.Mul(decimal.NewFromInt(30)).Round(2)
	return model.Prediction{
		PredictedMonthlyCost:     predicted,
		PredictedMonthlyMessages: int(math.Round(avgMessages * 30)),
		PredictedSavings:         predicted.Mul(decimal.NewFromFloat(p.table.ConservativeSavingsShare)).Round(2),
		ConfidenceScore:          minConfidence,
		Trend:                    "stable",
		Recommendations:          []string{"Collect at least 3 days of history for a trend-based forecast"},
	}
}

// adviceFor derives the free-text hints attached to a prediction.
func (p *Predictor) adviceFor(sorted []model.HistoricalDataPoint, costSlope float64) []string {
	var advice []string

	if costSlope > trendThreshold {
		advice = append(advice, "Daily cost is trending upward; review the latest recommendations before the trend compounds")
	}

	latest := sorted[len(sorted)-1]
	if latest.TotalMessages > 0 {
		marketing := 0
		for _, cc := range latest.Breakdown {
			if cc.Category == model.CategoryMarketing {
				marketing = cc.Count
			}
		}
		if float64(marketing)/float64(latest.TotalMessages) > 0.5 {
			advice = append(advice, "Marketing messages exceed half of yesterday's traffic; audit template categories to avoid the marketing rate")
		}
	}

	freeRatio, total := 0.0, 0
	for _, h := range sorted {
		freeRatio += float64(h.FreeMessages)
		total += h.TotalMessages
	}
	if total > 0 && freeRatio/float64(total) < 0.3 {
		advice = append(advice, "Less than 30% of traffic rides free conversation windows; time outbound sends to follow inbound contact")
	}

	return advice
}

// GenerateForecast projects months sequential monthly rows from the single
// 30-day base prediction, compounding a flat per-month optimization
// improvement. Deliberately not a re-fit per month.
func (p *Predictor) GenerateForecast(history []model.HistoricalDataPoint, months int) []model.ForecastMonth {
	if months <= 0 {
		months = 6
	}

	base := p.PredictFuture(history, 30).PredictedMonthlyCost
	improvement := decimal.NewFromFloat(1 - p.table.MonthlyImprovement)

	out := make([]model.ForecastMonth, 0, months)
	cost := base
	cumulative := decimal.Zero
	for m := 1; m <= months; m++ {
		cost = cost.Mul(improvement).Round(2)
		saved := base.Sub(cost)
		cumulative = cumulative.Add(saved)
		out = append(out, model.ForecastMonth{
			Month:             m,
			ProjectedCost:     cost,
			ProjectedSavings:  saved,
			CumulativeSavings: cumulative,
		})
	}
	return out
}

// planROITable holds the fixed per-plan savings constants. The numbers are
// heuristics from observed accounts, not a fitted model.
var planROITable = map[string]model.PlanROI{
	"starter":    {Plan: "starter", MonthlyCost: decimal.NewFromInt(29), SavingsRate: 0.10, BreakEvenMonths: 3, Confidence: 0.7},
	"growth":     {Plan: "growth", MonthlyCost: decimal.NewFromInt(99), SavingsRate: 0.18, BreakEvenMonths: 2, Confidence: 0.75},
	"enterprise": {Plan: "enterprise", MonthlyCost: decimal.NewFromInt(299), SavingsRate: 0.25, BreakEvenMonths: 2, Confidence: 0.8},
}

// PlanROI returns the fixed ROI constants for a target plan; unknown plans
// return the starter row.
func (p *Predictor) PlanROI(plan string) model.PlanROI {
	if roi, ok := planROITable[plan]; ok {
		return roi
	}
	return planROITable["starter"]
}

// impactTable holds fixed per-recommendation-category impact constants.
var impactTable = map[model.RecommendationCategory]model.RecommendationImpact{
	model.RecommendationTiming:         {Category: model.RecommendationTiming, SavingsRate: 0.20, TimeToImpactDay: 7, Confidence: 0.8},
	model.RecommendationClassification: {Category: model.RecommendationClassification, SavingsRate: 0.12, TimeToImpactDay: 14, Confidence: 0.7},
	model.RecommendationConversation:   {Category: model.RecommendationConversation, SavingsRate: 0.15, TimeToImpactDay: 21, Confidence: 0.6},
	model.RecommendationVolume:         {Category: model.RecommendationVolume, SavingsRate: 0.08, TimeToImpactDay: 30, Confidence: 0.75},
	model.RecommendationTemplate:       {Category: model.RecommendationTemplate, SavingsRate: 0.10, TimeToImpactDay: 14, Confidence: 0.65},
}

// RecommendationImpact returns the fixed impact constants for a
// recommendation category; unknown categories report zero impact.
func (p *Predictor) RecommendationImpact(cat model.RecommendationCategory) model.RecommendationImpact {
	if impact, ok := impactTable[cat]; ok {
		return impact
	}
	return model.RecommendationImpact{Category: cat}
}

// olsSlope fits an ordinary-least-squares line over the series with the
// index as x and returns its slope. Series shorter than 2 have no trend.
func olsSlope(series []float64) float64 {
	n := float64(len(series))
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range series {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

func mean(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range series {
		sum += v
	}
	return sum / float64(len(series))
}

// coefficientOfVariation is stddev/mean, or 1 for a degenerate series so
// that confidence bottoms out instead of blowing up.
func coefficientOfVariation(series []float64) float64 {
	m := mean(series)
	if m == 0 {
		return 1
	}
	variance := 0.0
	for _, v := range series {
		variance += (v - m) * (v - m)
	}
	variance /= float64(len(series))
	return math.Sqrt(variance) / m
}
