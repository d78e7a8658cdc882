// Package optimizer derives savings recommendations and an optimization
// score from already classified and costed messages. Pure analysis: no I/O.
package optimizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/messagewise/cost-insights/internal/model"
	"github.com/messagewise/cost-insights/internal/pricing"
)

// savingsPlaces is the rounding precision for recommendation amounts.
const savingsPlaces = 2

// minSavings is the floor below which a detector stays silent.
var minSavings = decimal.NewFromFloat(0.01)

// Optimizer runs the pattern detectors against one period's traffic.
// Stateless; safe for concurrent use.
type Optimizer struct {
	table *pricing.Table
}

// New returns an optimizer bound to the given pricing table.
func New(table *pricing.Table) *Optimizer {
	return &Optimizer{table: table}
}

// trafficStats are the shared counters every detector reads.
type trafficStats struct {
	total                 int
	outbound              int
	freeOutbound          int
	paidMarketing         int // marketing, outbound, outside free window
	marketingTotal        int
	authTotal             int
	conversations         map[string]struct{}
	byHour                [24]int
	avgPerConversation    float64
	freeWindowUtilization float64
}

func collectStats(messages []model.Message) trafficStats {
	s := trafficStats{conversations: make(map[string]struct{})}
	s.total = len(messages)

	for _, m := range messages {
		if m.ConversationID != "" {
			s.conversations[m.ConversationID] = struct{}{}
		}
		s.byHour[m.Timestamp.UTC().Hour()]++

		switch m.Category {
		case model.CategoryMarketing:
			s.marketingTotal++
		case model.CategoryAuthentication:
			s.authTotal++
		}

		if m.Direction != model.DirectionOutbound {
			continue
		}
		s.outbound++
		if m.IsInFreeWindow {
			s.freeOutbound++
		}
		if m.Category == model.CategoryMarketing && !m.IsInFreeWindow {
			s.paidMarketing++
		}
	}

	if n := len(s.conversations); n > 0 {
		s.avgPerConversation = float64(s.total) / float64(n)
	}
	if s.outbound > 0 {
		s.freeWindowUtilization = float64(s.freeOutbound) / float64(s.outbound)
	}
	return s
}

// GenerateRecommendations runs every detector, drops sub-cent findings,
// sorts by potential savings descending and assigns stable ids in that
// order. Empty or near-zero-cost input yields no recommendations.
func (o *Optimizer) GenerateRecommendations(messages []model.Message, breakdown model.CostBreakdown, country string) []model.Recommendation {
	if len(messages) == 0 || breakdown.TotalCost.LessThan(minSavings) {
		return []model.Recommendation{}
	}

	stats := collectStats(messages)

	detectors := []func(trafficStats, model.CostBreakdown, string) *model.Recommendation{
		o.detectTiming,
		o.detectReclassification,
		o.detectConversationUtilization,
		o.detectVolumeTierProximity,
		o.detectTemplateAudit,
		o.detectPeakConcentration,
	}

	recs := make([]model.Recommendation, 0, len(detectors))
	for _, detect := range detectors {
		if rec := detect(stats, breakdown, country); rec != nil {
			recs = append(recs, *rec)
		}
	}

	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].PotentialSavings.GreaterThan(recs[j].PotentialSavings)
	})
	for i := range recs {
		recs[i].ID = fmt.Sprintf("rec-%02d", i+1)
	}
	return recs
}

// savingsShare expresses savings as a percentage of total cost.
func savingsShare(savings, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	pct, _ := savings.Div(total).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}

func priorityBySavingsShare(pct float64) model.Priority {
	switch {
	case pct > 20:
		return model.PriorityHigh
	case pct > 10:
		return model.PriorityMedium
	default:
		return model.PriorityLow
	}
}

// Detector 1: marketing messages sent outside any free window.
func (o *Optimizer) detectTiming(s trafficStats, b model.CostBreakdown, country string) *model.Recommendation {
	savings := o.table.UnitPrice(country, model.CategoryMarketing).
		Mul(decimal.NewFromInt(int64(s.paidMarketing))).
		Round(savingsPlaces)
	if savings.LessThan(minSavings) {
		return nil
	}

	pct := savingsShare(savings, b.TotalCost)
	return &model.Recommendation{
		Title:             "Send marketing messages inside open conversation windows",
		Description:       fmt.Sprintf("%d marketing messages were sent outside a 24-hour conversation window and billed at the marketing rate. Triggering them as replies to recent inbound messages would make them free.", s.paidMarketing),
		PotentialSavings:  savings,
		SavingsPercentage: pct,
		Priority:          priorityBySavingsShare(pct),
		Category:          model.RecommendationTiming,
		Steps: []string{
			"Identify recipients with recently opened conversation windows",
			"Schedule marketing sends within 24 hours of the last inbound message",
			"Hold campaigns for recipients without an open window",
		},
	}
}

// Detector 2: part of the paid marketing volume is mislabeled transactional
// content that would price at the utility rate.
func (o *Optimizer) detectReclassification(s trafficStats, b model.CostBreakdown, country string) *model.Recommendation {
	reclassifiable := int(math.Round(float64(s.paidMarketing) * o.table.ReclassifiableShare))
	rateDelta := o.table.UnitPrice(country, model.CategoryMarketing).
		Sub(o.table.UnitPrice(country, model.CategoryUtility))
	savings := rateDelta.Mul(decimal.NewFromInt(int64(reclassifiable))).Round(savingsPlaces)
	if savings.LessThan(minSavings) {
		return nil
	}

	pct := savingsShare(savings, b.TotalCost)
	return &model.Recommendation{
		Title:             "Reclassify transactional templates billed as marketing",
		Description:       fmt.Sprintf("An estimated %d of your paid marketing messages carry transactional content (order updates, confirmations) and would qualify for the cheaper utility rate.", reclassifiable),
		PotentialSavings:  savings,
		SavingsPercentage: pct,
		Priority:          priorityBySavingsShare(pct),
		Category:          model.RecommendationClassification,
		Steps: []string{
			"Audit marketing templates for transactional content",
			"Resubmit qualifying templates under the utility category",
			"Track the provider's category decisions on resubmission",
		},
	}
}

// Detector 3: short conversations plus low free-window utilization means
// paid sends that could have ridden existing windows.
func (o *Optimizer) detectConversationUtilization(s trafficStats, b model.CostBreakdown, _ string) *model.Recommendation {
	if len(s.conversations) == 0 || s.avgPerConversation >= 3 || s.freeWindowUtilization > 0.7 {
		return nil
	}

	savings := b.TotalCost.Mul(decimal.NewFromFloat(0.15)).Round(savingsPlaces)
	if savings.LessThan(minSavings) {
		return nil
	}

	return &model.Recommendation{
		Title:             "Batch follow-ups into open conversation windows",
		Description:       fmt.Sprintf("Conversations average %.1f messages and only %.0f%% of outbound traffic rides a free window. Consolidating follow-ups into open windows typically recovers around 15%% of spend.", s.avgPerConversation, s.freeWindowUtilization*100),
		PotentialSavings:  savings,
		SavingsPercentage: savingsShare(savings, b.TotalCost),
		Priority:          model.PriorityMedium,
		Category:          model.RecommendationConversation,
		Steps: []string{
			"Bundle related notifications into a single conversation",
			"Prioritize sends to recipients with open windows",
			"Defer non-urgent messages until the next inbound contact",
		},
	}
}

// Detector 4: close enough to the next volume tier that pushing
// conversation volume over the threshold pays for itself.
func (o *Optimizer) detectVolumeTierProximity(s trafficStats, b model.CostBreakdown, _ string) *model.Recommendation {
	current := o.table.TierFor(len(s.conversations))
	next, ok := o.table.NextTier(current)
	if !ok {
		return nil
	}

	progress := float64(len(s.conversations)) / float64(next.MinConversations)
	if progress < o.table.TierProximity {
		return nil
	}

	savings := b.TotalCost.Mul(decimal.NewFromFloat(next.Discount - current.Discount)).Round(savingsPlaces)
	if savings.LessThan(minSavings) {
		return nil
	}

	priority := model.PriorityMedium
	if progress >= 0.9 {
		priority = model.PriorityHigh
	}

	return &model.Recommendation{
		Title:             "Reach the next volume discount tier",
		Description:       fmt.Sprintf("You are at %d of the %d unique conversations needed for the %.0f%% discount tier.", len(s.conversations), next.MinConversations, next.Discount*100),
		PotentialSavings:  savings,
		SavingsPercentage: savingsShare(savings, b.TotalCost),
		Priority:          priority,
		Category:          model.RecommendationVolume,
		Steps: []string{
			"Consolidate traffic from sibling accounts into one billing account",
			"Bring forward planned campaigns to cross the threshold this period",
		},
	}
}

// Detector 5: marketing-heavy template mix warrants a category audit.
func (o *Optimizer) detectTemplateAudit(s trafficStats, b model.CostBreakdown, _ string) *model.Recommendation {
	if s.total == 0 || float64(s.marketingTotal)/float64(s.total) <= 0.4 {
		return nil
	}

	savings := b.TotalCost.Mul(decimal.NewFromFloat(0.10)).Round(savingsPlaces)
	if savings.LessThan(minSavings) {
		return nil
	}

	return &model.Recommendation{
		Title:             "Audit your template mix",
		Description:       fmt.Sprintf("Marketing messages make up %.0f%% of your traffic. A template audit usually finds utility and service content hiding in marketing templates.", float64(s.marketingTotal)/float64(s.total)*100),
		PotentialSavings:  savings,
		SavingsPercentage: savingsShare(savings, b.TotalCost),
		Priority:          model.PriorityMedium,
		Category:          model.RecommendationTemplate,
		Steps: []string{
			"Export the template list with categories and send volumes",
			"Flag templates whose content does not match their category",
			"Split mixed-purpose templates into dedicated ones",
		},
	}
}

// Detector 6: volume concentrated in a few hours suggests batching that
// defeats conversation windows.
func (o *Optimizer) detectPeakConcentration(s trafficStats, b model.CostBreakdown, _ string) *model.Recommendation {
	if s.total == 0 {
		return nil
	}

	hours := s.byHour
	sort.Sort(sort.Reverse(sort.IntSlice(hours[:])))
	top3 := hours[0] + hours[1] + hours[2]
	if float64(top3)/float64(s.total) < 0.5 {
		return nil
	}

	savings := b.TotalCost.Mul(decimal.NewFromFloat(0.05)).Round(savingsPlaces)
	if savings.LessThan(minSavings) {
		return nil
	}

	return &model.Recommendation{
		Title:             "Spread sends beyond peak hours",
		Description:       fmt.Sprintf("Your busiest 3 hours carry %.0f%% of message volume. Spreading sends lets more of them land inside conversation windows opened through the day.", float64(top3)/float64(s.total)*100),
		PotentialSavings:  savings,
		SavingsPercentage: savingsShare(savings, b.TotalCost),
		Priority:          model.PriorityLow,
		Category:          model.RecommendationTiming,
		Steps: []string{
			"Throttle campaign batches across the day",
			"Align send times with each recipient's last inbound contact",
		},
	}
}

// OptimizationScore summarizes how well a period's traffic avoided
// avoidable cost, from 0 (poor) to 100 (optimal).
func (o *Optimizer) OptimizationScore(messages []model.Message, breakdown model.CostBreakdown) int {
	score := 100.0
	if len(messages) == 0 {
		return 100
	}

	s := collectStats(messages)

	score -= 30 * (float64(s.paidMarketing) / float64(s.total))

	switch {
	case s.avgPerConversation < 2:
		score -= 15
	case s.avgPerConversation < 3:
		score -= 8
	}

	switch {
	case s.freeWindowUtilization < 0.3:
		score -= 20
	case s.freeWindowUtilization < 0.5:
		score -= 10
	}

	if float64(s.authTotal)/float64(s.total) > 0.1 {
		score += 5
	}

	return int(math.Round(math.Max(0, math.Min(100, score))))
}
