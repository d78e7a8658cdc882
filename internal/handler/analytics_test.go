package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/messagewise/cost-insights/internal/calculator"
	"github.com/messagewise/cost-insights/internal/middleware"
	"github.com/messagewise/cost-insights/internal/model"
	"github.com/messagewise/cost-insights/internal/optimizer"
	"github.com/messagewise/cost-insights/internal/predictor"
	"github.com/messagewise/cost-insights/internal/pricing"
	"github.com/messagewise/cost-insights/pkg/logger"
)

type fakeMessages struct {
	messages []model.Message
}

func (s *fakeMessages) UpsertMessage(context.Context, *model.Message) error { return nil }

func (s *fakeMessages) GetMessageByExternalID(context.Context, string, string) (*model.Message, error) {
	return nil, nil
}

func (s *fakeMessages) ListMessagesByPeriod(_ context.Context, accountID string, from, to time.Time) ([]model.Message, error) {
	var out []model.Message
	for _, m := range s.messages {
		if m.AccountID == accountID && !m.Timestamp.Before(from) && m.Timestamp.Before(to) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeMessages) LatestInboundSince(context.Context, string, string, time.Time) (*model.Message, error) {
	return nil, nil
}

func (s *fakeMessages) ActiveAccounts(context.Context, time.Time, time.Time) ([]string, error) {
	return nil, nil
}

type fakeHistory struct {
	points []model.HistoricalDataPoint
}

func (h *fakeHistory) History(context.Context, string, int) ([]model.HistoricalDataPoint, error) {
	return h.points, nil
}

func newAnalyticsRouter(msgs *fakeMessages, history *fakeHistory, now time.Time) http.Handler {
	table := pricing.DefaultTable()
	log, _ := logger.New("error")
	h := NewAnalyticsHandler(msgs, calculator.New(table), optimizer.New(table), predictor.New(table), history, "US", log)
	h.now = func() time.Time { return now }

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := context.WithValue(req.Context(), middleware.AccountIDKey, "acct-1")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Get("/analytics/breakdown", h.Breakdown)
	r.Get("/analytics/daily", h.Daily)
	r.Get("/analytics/compare", h.Compare)
	r.Get("/analytics/savings", h.Savings)
	r.Get("/analytics/monthly-estimate", h.MonthlyEstimate)
	r.Get("/insights/recommendations", h.Recommendations)
	r.Get("/insights/score", h.Score)
	r.Get("/insights/predict", h.Predict)
	r.Get("/insights/forecast", h.Forecast)
	r.Get("/insights/roi/{plan}", h.PlanROI)
	r.Get("/insights/impact/{category}", h.Impact)
	return r
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func paidUtility(ts time.Time) model.Message {
	return model.Message{
		AccountID: "acct-1",
		Direction: model.DirectionOutbound,
		Category:  model.CategoryUtility,
		Timestamp: ts,
		Cost:      decimal.RequireFromString("0.02"),
	}
}

func TestBreakdownEndpoint(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	msgs := &fakeMessages{}
	for i := 0; i < 5; i++ {
		msgs.messages = append(msgs.messages, paidUtility(now.Add(-time.Duration(i+1)*time.Hour)))
	}

	router := newAnalyticsRouter(msgs, &fakeHistory{}, now)
	rec := get(t, router, "/analytics/breakdown")
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.CostBreakdown
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 5, got.MessageCount)
	assert.True(t, got.TotalCost.Equal(decimal.RequireFromString("0.1")),
		"got %s", got.TotalCost)
	assert.Len(t, got.Categories, 4)
}

func TestBreakdownHonorsDateRange(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	msgs := &fakeMessages{messages: []model.Message{
		paidUtility(time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)),
		paidUtility(time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)),
	}}

	router := newAnalyticsRouter(msgs, &fakeHistory{}, now)
	rec := get(t, router, "/analytics/breakdown?from=2026-03-01&to=2026-03-09")
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.CostBreakdown
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.MessageCount)
}

func TestBreakdownRejectsBadDate(t *testing.T) {
	router := newAnalyticsRouter(&fakeMessages{}, &fakeHistory{}, time.Now().UTC())
	rec := get(t, router, "/analytics/breakdown?from=03-01-2026")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompareUsesPrecedingPeriod(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	msgs := &fakeMessages{messages: []model.Message{
		// previous period: 2 messages
		paidUtility(time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)),
		paidUtility(time.Date(2026, 3, 3, 10, 0, 0, 0, time.UTC)),
		// current period: 1 message
		paidUtility(time.Date(2026, 3, 12, 10, 0, 0, 0, time.UTC)),
	}}

	router := newAnalyticsRouter(msgs, &fakeHistory{}, now)
	rec := get(t, router, "/analytics/compare?from=2026-03-11&to=2026-03-20")
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.PeriodComparison
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.TrendDown, got.Messages.Trend)
	assert.True(t, got.Messages.Previous.Equal(decimal.NewFromInt(2)))
	assert.True(t, got.Messages.Current.Equal(decimal.NewFromInt(1)))
}

func TestScoreEndpoint(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	msgs := &fakeMessages{messages: []model.Message{paidUtility(now.Add(-time.Hour))}}

	router := newAnalyticsRouter(msgs, &fakeHistory{}, now)
	rec := get(t, router, "/insights/score")
	require.Equal(t, http.StatusOK, rec.Code)

	var got struct {
		Score int `json:"score"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.GreaterOrEqual(t, got.Score, 0)
	assert.LessOrEqual(t, got.Score, 100)
}

func TestPredictEndpointUsesHistory(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	history := &fakeHistory{}
	for i := 0; i < 5; i++ {
		history.points = append(history.points, model.HistoricalDataPoint{
			Date:          now.AddDate(0, 0, -5+i),
			TotalCost:     decimal.RequireFromString("15"),
			TotalMessages: 100,
			PaidMessages:  100,
		})
	}

	router := newAnalyticsRouter(&fakeMessages{}, history, now)
	rec := get(t, router, "/insights/predict?days=30")
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.Prediction
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.PredictedMonthlyCost.GreaterThan(decimal.Zero))
}

func TestPredictRejectsBadDays(t *testing.T) {
	router := newAnalyticsRouter(&fakeMessages{}, &fakeHistory{}, time.Now().UTC())
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/insights/predict?days=0").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, router, "/insights/predict?days=abc").Code)
}

func TestPlanROILookup(t *testing.T) {
	router := newAnalyticsRouter(&fakeMessages{}, &fakeHistory{}, time.Now().UTC())
	rec := get(t, router, "/insights/roi/growth")
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.PlanROI
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "growth", got.Plan)
}

func TestImpactLookup(t *testing.T) {
	router := newAnalyticsRouter(&fakeMessages{}, &fakeHistory{}, time.Now().UTC())
	rec := get(t, router, "/insights/impact/timing")
	require.Equal(t, http.StatusOK, rec.Code)

	var got model.RecommendationImpact
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, model.RecommendationTiming, got.Category)
	assert.InDelta(t, 0.20, got.SavingsRate, 1e-9)
}

func TestRecommendationsEmptyTraffic(t *testing.T) {
	router := newAnalyticsRouter(&fakeMessages{}, &fakeHistory{}, time.Now().UTC())
	rec := get(t, router, "/insights/recommendations")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":0`)
}
