package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/messagewise/cost-insights/internal/calculator"
	"github.com/messagewise/cost-insights/internal/middleware"
	"github.com/messagewise/cost-insights/internal/model"
	"github.com/messagewise/cost-insights/internal/optimizer"
	"github.com/messagewise/cost-insights/internal/predictor"
	"github.com/messagewise/cost-insights/internal/store"
	"github.com/messagewise/cost-insights/pkg/logger"
)

var errRangeTooWide = errors.New("date range exceeds one year")

const (
	defaultRangeDays   = 30
	maxRangeDays       = 366
	defaultSampleDays  = 7
	defaultPredictDays = 30
	maxPredictDays     = 365
	defaultForecastMo  = 6
	maxForecastMo      = 24
	historyWindowDays  = 90
)

// HistoryProvider serves the pre-aggregated daily series the predictor
// consumes.
type HistoryProvider interface {
	History(ctx context.Context, accountID string, days int) ([]model.HistoricalDataPoint, error)
}

// AnalyticsHandler serves the cost analytics and insight endpoints. Every
// endpoint is scoped to the account carried in the JWT.
type AnalyticsHandler struct {
	messages store.MessageStore
	calc     *calculator.Calculator
	opt      *optimizer.Optimizer
	pred     *predictor.Predictor
	history  HistoryProvider
	country  string
	logger   *logger.Logger
	now      func() time.Time
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(
	messages store.MessageStore,
	calc *calculator.Calculator,
	opt *optimizer.Optimizer,
	pred *predictor.Predictor,
	history HistoryProvider,
	country string,
	log *logger.Logger,
) *AnalyticsHandler {
	return &AnalyticsHandler{
		messages: messages,
		calc:     calc,
		opt:      opt,
		pred:     pred,
		history:  history,
		country:  country,
		logger:   log,
		now:      time.Now,
	}
}

// rangeFromQuery resolves the from/to query parameters. Defaults to the
// last 30 days ending now. The to day is exclusive-end: to=2026-01-31
// includes the whole of the 31st.
func (h *AnalyticsHandler) rangeFromQuery(r *http.Request) (time.Time, time.Time, error) {
	now := h.now().UTC()
	from := calculator.DayOf(now).AddDate(0, 0, -defaultRangeDays+1)
	to := now

	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := middleware.ValidateDateParam(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := middleware.ValidateDateParam(v)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = parsed.AddDate(0, 0, 1)
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return time.Time{}, time.Time{}, errRangeTooWide
	}
	return from, to, nil
}

func (h *AnalyticsHandler) loadMessages(w http.ResponseWriter, r *http.Request) ([]model.Message, string, bool) {
	ctx := r.Context()
	accountID := middleware.GetAccountID(ctx)

	from, to, err := h.rangeFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, "", false
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return nil, "", false
	}

	msgs, err := h.messages.ListMessagesByPeriod(ctx, accountID, from, to)
	if err != nil {
		h.logger.Error("failed to load messages",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return nil, "", false
	}
	return msgs, accountID, true
}

func (h *AnalyticsHandler) opts() calculator.Options {
	return calculator.DefaultOptions(h.country)
}

// Breakdown handles GET /api/v1/analytics/breakdown
func (h *AnalyticsHandler) Breakdown(w http.ResponseWriter, r *http.Request) {
	msgs, _, ok := h.loadMessages(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.calc.Calculate(msgs, h.opts()))
}

// Daily handles GET /api/v1/analytics/daily
func (h *AnalyticsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	msgs, _, ok := h.loadMessages(w, r)
	if !ok {
		return
	}

	daily := h.calc.CalculateDailyCosts(msgs, h.opts())

	type day struct {
		Date string `json:"date"`
		model.CostBreakdown
	}
	out := make([]day, 0, len(daily))
	for _, d := range calculator.SortedDays(daily) {
		out = append(out, day{Date: d, CostBreakdown: daily[d]})
	}
	writeJSON(w, http.StatusOK, out)
}

// Compare handles GET /api/v1/analytics/compare. The current period comes
// from the from/to parameters; the previous period is the same length
// immediately before it.
func (h *AnalyticsHandler) Compare(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	accountID := middleware.GetAccountID(ctx)

	from, to, err := h.rangeFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}

	length := to.Sub(from)
	prevFrom := from.Add(-length)

	previous, err := h.messages.ListMessagesByPeriod(ctx, accountID, prevFrom, from)
	if err == nil {
		var current []model.Message
		current, err = h.messages.ListMessagesByPeriod(ctx, accountID, from, to)
		if err == nil {
			writeJSON(w, http.StatusOK, h.calc.ComparePeriods(previous, current, h.opts()))
			return
		}
	}

	h.logger.Error("failed to load comparison periods",
		zap.String("account_id", accountID),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "failed to load messages")
}

// Savings handles GET /api/v1/analytics/savings
func (h *AnalyticsHandler) Savings(w http.ResponseWriter, r *http.Request) {
	msgs, _, ok := h.loadMessages(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.calc.CalculatePotentialSavings(msgs, h.opts()))
}

// MonthlyEstimate handles GET /api/v1/analytics/monthly-estimate
func (h *AnalyticsHandler) MonthlyEstimate(w http.ResponseWriter, r *http.Request) {
	sampleDays := defaultSampleDays
	if v := r.URL.Query().Get("sample_days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "sample_days must be an integer")
			return
		}
		sampleDays = parsed
	}
	if err := middleware.ValidateDayRange(sampleDays, defaultRangeDays); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, _, ok := h.loadMessages(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.calc.EstimateMonthlyCost(msgs, sampleDays, h.opts()))
}

// Recommendations handles GET /api/v1/insights/recommendations
func (h *AnalyticsHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	msgs, _, ok := h.loadMessages(w, r)
	if !ok {
		return
	}

	breakdown := h.calc.Calculate(msgs, h.opts())
	recs := h.opt.GenerateRecommendations(msgs, breakdown, h.country)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": recs,
		"count":           len(recs),
	})
}

// Score handles GET /api/v1/insights/score
func (h *AnalyticsHandler) Score(w http.ResponseWriter, r *http.Request) {
	msgs, _, ok := h.loadMessages(w, r)
	if !ok {
		return
	}

	breakdown := h.calc.Calculate(msgs, h.opts())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"score": h.opt.OptimizationScore(msgs, breakdown),
	})
}

// Predict handles GET /api/v1/insights/predict
func (h *AnalyticsHandler) Predict(w http.ResponseWriter, r *http.Request) {
	days := defaultPredictDays
	if v := r.URL.Query().Get("days"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = parsed
	}
	if err := middleware.ValidateDayRange(days, maxPredictDays); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	history, ok := h.loadHistory(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.pred.PredictFuture(history, days))
}

// Forecast handles GET /api/v1/insights/forecast
func (h *AnalyticsHandler) Forecast(w http.ResponseWriter, r *http.Request) {
	months := defaultForecastMo
	if v := r.URL.Query().Get("months"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxForecastMo {
			writeError(w, http.StatusBadRequest, "months must be between 1 and 24")
			return
		}
		months = parsed
	}

	history, ok := h.loadHistory(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.pred.GenerateForecast(history, months))
}

// PlanROI handles GET /api/v1/insights/roi/{plan}
func (h *AnalyticsHandler) PlanROI(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pred.PlanROI(chi.URLParam(r, "plan")))
}

// Impact handles GET /api/v1/insights/impact/{category}
func (h *AnalyticsHandler) Impact(w http.ResponseWriter, r *http.Request) {
	cat := model.RecommendationCategory(chi.URLParam(r, "category"))
	writeJSON(w, http.StatusOK, h.pred.RecommendationImpact(cat))
}

func (h *AnalyticsHandler) loadHistory(w http.ResponseWriter, r *http.Request) ([]model.HistoricalDataPoint, bool) {
	ctx := r.Context()
	accountID := middleware.GetAccountID(ctx)

	history, err := h.history.History(ctx, accountID, historyWindowDays)
	if err != nil {
		h.logger.Error("failed to load history",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return nil, false
	}
	return history, true
}
