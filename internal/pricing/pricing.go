// Package pricing holds the per-category rate tables and volume-discount
// tiers used by the calculator, optimizer and predictor.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/messagewise/cost-insights/internal/model"
)

// Tier is one volume-discount band. A billing period whose unique
// conversation count falls inside [MinConversations, MaxConversations]
// gets Discount taken off every category's cost.
type Tier struct {
	MinConversations int     `json:"min_conversations"`
	MaxConversations int     `json:"max_conversations"` // 0 means unbounded
	Discount         float64 `json:"discount"`
}

// Contains reports whether count falls inside the tier's band.
func (t Tier) Contains(count int) bool {
	if count < t.MinConversations {
		return false
	}
	return t.MaxConversations == 0 || count <= t.MaxConversations
}

// Rates maps a message category to its unit price.
type Rates map[model.Category]decimal.Decimal

// Table is the static pricing configuration: country-specific unit prices
// with a global default fallback, and the discount tier ladder.
//
// Heuristic constants the optimizer and predictor share live here too, so
// they are configured in one place rather than hard-coded at call sites.
type Table struct {
	Currency string
	// ByCountry holds country-specific rates keyed by ISO country code.
	ByCountry map[string]Rates
	// Default is used when a country has no specific rates.
	Default Rates
	// Tiers must be in strictly increasing MinConversations order.
	Tiers []Tier

	// ReclassifiableShare is the assumed fraction of outside-window
	// marketing messages that are really transactional content.
	ReclassifiableShare float64
	// ConservativeSavingsShare is the savings fraction assumed when the
	// predictor has too little history to fit a trend.
	ConservativeSavingsShare float64
	// MonthlyImprovement is the flat per-month optimization improvement
	// applied when projecting multi-month forecasts.
	MonthlyImprovement float64
	// TierProximity is how close (as a fraction of the next tier's
	// threshold) a period must be before a volume recommendation fires.
	TierProximity float64
}

// DefaultTable returns the built-in global rate card.
func DefaultTable() *Table {
	return &Table{
		Currency: "USD",
		ByCountry: map[string]Rates{
			"US": {
				model.CategoryAuthentication: decimal.NewFromFloat(0.0135),
				model.CategoryMarketing:      decimal.NewFromFloat(0.025),
				model.CategoryUtility:        decimal.NewFromFloat(0.02),
				model.CategoryService:        decimal.NewFromFloat(0.0088),
			},
			"BR": {
				model.CategoryAuthentication: decimal.NewFromFloat(0.0315),
				model.CategoryMarketing:      decimal.NewFromFloat(0.0625),
				model.CategoryUtility:        decimal.NewFromFloat(0.035),
				model.CategoryService:        decimal.NewFromFloat(0.03),
			},
			"IN": {
				model.CategoryAuthentication: decimal.NewFromFloat(0.0014),
				model.CategoryMarketing:      decimal.NewFromFloat(0.0099),
				model.CategoryUtility:        decimal.NewFromFloat(0.0014),
				model.CategoryService:        decimal.NewFromFloat(0.0029),
			},
			"ID": {
				model.CategoryAuthentication: decimal.NewFromFloat(0.03),
				model.CategoryMarketing:      decimal.NewFromFloat(0.0411),
				model.CategoryUtility:        decimal.NewFromFloat(0.02),
				model.CategoryService:        decimal.NewFromFloat(0.019),
			},
		},
		Default: Rates{
			model.CategoryAuthentication: decimal.NewFromFloat(0.0315),
			model.CategoryMarketing:      decimal.NewFromFloat(0.05),
			model.CategoryUtility:        decimal.NewFromFloat(0.025),
			model.CategoryService:        decimal.NewFromFloat(0.015),
		},
		Tiers: []Tier{
			{MinConversations: 0, MaxConversations: 999, Discount: 0},
			{MinConversations: 1000, MaxConversations: 9999, Discount: 0.05},
			{MinConversations: 10000, MaxConversations: 99999, Discount: 0.10},
			{MinConversations: 100000, MaxConversations: 0, Discount: 0.15},
		},
		ReclassifiableShare:      0.30,
		ConservativeSavingsShare: 0.20,
		MonthlyImprovement:       0.05,
		TierProximity:            0.70,
	}
}

// UnitPrice returns the per-message price for a category in a country,
// falling back to the default rate card when the country has no specific
// rates. Unknown categories price at zero.
func (t *Table) UnitPrice(country string, cat model.Category) decimal.Decimal {
	rates, ok := t.ByCountry[country]
	if !ok {
		rates = t.Default
	}
	if price, ok := rates[cat]; ok {
		return price
	}
	if price, ok := t.Default[cat]; ok {
		return price
	}
	return decimal.Zero
}

// TierFor returns the discount tier for a unique-conversation count: the
// highest tier whose minimum the count has reached. Thresholds are
// inclusive, so a count exactly at a tier's minimum takes that tier.
func (t *Table) TierFor(uniqueConversations int) Tier {
	tier := t.Tiers[0]
	for _, candidate := range t.Tiers {
		if uniqueConversations >= candidate.MinConversations {
			tier = candidate
		}
	}
	return tier
}

// NextTier returns the tier above the given one, or false at the top.
func (t *Table) NextTier(current Tier) (Tier, bool) {
	for i, candidate := range t.Tiers {
		if candidate.MinConversations == current.MinConversations && i+1 < len(t.Tiers) {
			return t.Tiers[i+1], true
		}
	}
	return Tier{}, false
}
