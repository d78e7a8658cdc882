package model

import (
	"github.com/shopspring/decimal"
)

// Priority ranks how urgent a recommendation is.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// RecommendationCategory names the optimization lever a recommendation pulls.
type RecommendationCategory string

const (
	RecommendationTiming         RecommendationCategory = "timing"
	RecommendationClassification RecommendationCategory = "classification"
	RecommendationConversation   RecommendationCategory = "conversation"
	RecommendationVolume         RecommendationCategory = "volume"
	RecommendationTemplate       RecommendationCategory = "template"
)

// Recommendation is one actionable savings opportunity. Recommendations are
// generated fresh per analysis run and ranked by potential savings.
type Recommendation struct {
	ID                string                 `json:"id"`
	Title             string                 `json:"title"`
	Description       string                 `json:"description"`
	PotentialSavings  decimal.Decimal        `json:"potential_savings"`
	SavingsPercentage float64                `json:"savings_percentage"`
	Priority          Priority               `json:"priority"`
	Category          RecommendationCategory `json:"category"`
	Steps             []string               `json:"steps"`
	Implemented       bool                   `json:"implemented"`
}

// Prediction is the predictor's forward estimate for the next period.
type Prediction struct {
	PredictedMonthlyCost     decimal.Decimal `json:"predicted_monthly_cost"`
	PredictedMonthlyMessages int             `json:"predicted_monthly_messages"`
	PredictedSavings         decimal.Decimal `json:"predicted_savings"`
	ConfidenceScore          float64         `json:"confidence_score"`
	Trend                    string          `json:"trend"`
	Recommendations          []string        `json:"recommendations"`
}

// ForecastMonth is one row of a month-by-month cost forecast.
type ForecastMonth struct {
	Month             int             `json:"month"`
	ProjectedCost     decimal.Decimal `json:"projected_cost"`
	ProjectedSavings  decimal.Decimal `json:"projected_savings"`
	CumulativeSavings decimal.Decimal `json:"cumulative_savings"`
}

// PlanROI is a table-lookup return-on-investment estimate for a target plan.
type PlanROI struct {
	Plan            string          `json:"plan"`
	MonthlyCost     decimal.Decimal `json:"monthly_cost"`
	SavingsRate     float64         `json:"savings_rate"`
	BreakEvenMonths int             `json:"break_even_months"`
	Confidence      float64         `json:"confidence"`
}

// RecommendationImpact is a table-lookup impact estimate for one
// recommendation category.
type RecommendationImpact struct {
	Category        RecommendationCategory `json:"category"`
	SavingsRate     float64                `json:"savings_rate"`
	TimeToImpactDay int                    `json:"time_to_impact_days"`
	Confidence      float64                `json:"confidence"`
}
