package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/parlaytech/updown-arb/pkg/types"
)

type apiHandler struct {
	positions PositionSource
	breaker   BreakerSource
	books     BookSource
	trades    TradeSource
	logger    *zap.Logger
}

func newAPIHandler(cfg *Config) *apiHandler {
	return &apiHandler{
		positions: cfg.Positions,
		breaker:   cfg.Breaker,
		books:     cfg.Books,
		trades:    cfg.Trades,
		logger:    cfg.Logger,
	}
}

type positionJSON struct {
	TradeID           string    `json:"trade_id"`
	ConditionID       string    `json:"condition_id"`
	Asset             string    `json:"asset"`
	Slug              string    `json:"slug"`
	YesShares         string    `json:"yes_shares"`
	NoShares          string    `json:"no_shares"`
	YesAvgCost        string    `json:"yes_avg_cost"`
	NoAvgCost         string    `json:"no_avg_cost"`
	HedgeRatio        string    `json:"hedge_ratio"`
	RebalanceAttempts int       `json:"rebalance_attempts"`
	MarketEndTime     time.Time `json:"market_end_time"`
}

func (h *apiHandler) handlePositions(w http.ResponseWriter, _ *http.Request) {
	positions := h.positions.All()

	out := make([]positionJSON, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionJSON{
			TradeID:           p.TradeID,
			ConditionID:       p.ConditionID,
			Asset:             p.Asset.String(),
			Slug:              p.Slug,
			YesShares:         p.YesShares.String(),
			NoShares:          p.NoShares.String(),
			YesAvgCost:        p.YesAvgCost.String(),
			NoAvgCost:         p.NoAvgCost.String(),
			HedgeRatio:        p.HedgeRatio().String(),
			RebalanceAttempts: p.RebalanceAttempts,
			MarketEndTime:     p.MarketEndTime,
		})
	}

	h.writeJSON(w, out)
}

type breakerJSON struct {
	Level               string    `json:"level"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	DailyPnL            string    `json:"daily_pnl"`
	DayBucket           string    `json:"day_bucket"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (h *apiHandler) handleBreaker(w http.ResponseWriter, _ *http.Request) {
	state := h.breaker.State()

	h.writeJSON(w, breakerJSON{
		Level:               state.Level.String(),
		ConsecutiveFailures: state.ConsecutiveFailures,
		DailyPnL:            state.DailyPnL.String(),
		DayBucket:           state.DayBucket,
		UpdatedAt:           state.UpdatedAt,
	})
}

type marketJSON struct {
	ConditionID string    `json:"condition_id"`
	Asset       string    `json:"asset"`
	Slug        string    `json:"slug"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

func (h *apiHandler) handleMarkets(w http.ResponseWriter, _ *http.Request) {
	markets := h.books.TrackedMarkets()

	out := make([]marketJSON, 0, len(markets))
	for _, m := range markets {
		out = append(out, marketJSON{
			ConditionID: m.ConditionID,
			Asset:       m.Asset.String(),
			Slug:        m.Slug,
			StartTime:   m.StartTime,
			EndTime:     m.EndTime,
		})
	}

	h.writeJSON(w, out)
}

type levelJSON struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type sideJSON struct {
	Bids []levelJSON `json:"bids"`
	Asks []levelJSON `json:"asks"`
}

type bookJSON struct {
	ConditionID string    `json:"condition_id"`
	Slug        string    `json:"slug"`
	Yes         sideJSON  `json:"yes"`
	No          sideJSON  `json:"no"`
	Spread      string    `json:"spread,omitempty"`
	LastUpdate  time.Time `json:"last_update"`
	Revision    uint64    `json:"revision"`
}

func (h *apiHandler) handleBook(w http.ResponseWriter, r *http.Request) {
	conditionID := chi.URLParam(r, "conditionID")

	state, ok := h.books.State(conditionID)
	if !ok {
		h.writeError(w, "market not tracked", http.StatusNotFound)
		return
	}

	resp := bookJSON{
		ConditionID: conditionID,
		Yes:         sideToJSON(state.Yes),
		No:          sideToJSON(state.No),
		LastUpdate:  state.LastUpdate,
		Revision:    state.Revision,
	}
	if market, ok := h.books.Market(conditionID); ok {
		resp.Slug = market.Slug
	}
	if spread, ok := state.Spread(); ok {
		resp.Spread = spread.String()
	}

	h.writeJSON(w, resp)
}

func sideToJSON(book types.TokenBook) sideJSON {
	out := sideJSON{
		Bids: make([]levelJSON, 0, len(book.Bids)),
		Asks: make([]levelJSON, 0, len(book.Asks)),
	}
	for _, lvl := range book.Bids {
		out.Bids = append(out.Bids, levelJSON{Price: lvl.Price.String(), Size: lvl.Size.String()})
	}
	for _, lvl := range book.Asks {
		out.Asks = append(out.Asks, levelJSON{Price: lvl.Price.String(), Size: lvl.Size.String()})
	}
	return out
}

type tradeJSON struct {
	TradeID        string    `json:"trade_id"`
	CreatedAt      time.Time `json:"created_at"`
	ConditionID    string    `json:"condition_id"`
	Asset          string    `json:"asset"`
	Slug           string    `json:"slug"`
	Status         string    `json:"status"`
	YesShares      string    `json:"yes_shares"`
	NoShares       string    `json:"no_shares"`
	ActualCost     string    `json:"actual_cost"`
	HedgeRatio     string    `json:"hedge_ratio"`
	ExpectedProfit string    `json:"expected_profit"`
	DryRun         bool      `json:"dry_run"`
}

func (h *apiHandler) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 500 {
			h.writeError(w, "limit must be a positive integer up to 500", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	trades, err := h.trades.GetRecentTrades(r.Context(), limit)
	if err != nil {
		h.logger.Error("trades-query-failed", zap.Error(err))
		h.writeError(w, "query failed", http.StatusInternalServerError)
		return
	}

	out := make([]tradeJSON, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeJSON{
			TradeID:        t.TradeID,
			CreatedAt:      t.CreatedAt,
			ConditionID:    t.ConditionID,
			Asset:          t.Asset.String(),
			Slug:           t.Slug,
			Status:         string(t.Status),
			YesShares:      t.YesShares.String(),
			NoShares:       t.NoShares.String(),
			ActualCost:     t.ActualCost().String(),
			HedgeRatio:     t.HedgeRatio.String(),
			ExpectedProfit: t.ExpectedProfit.String(),
			DryRun:         t.DryRun,
		})
	}

	h.writeJSON(w, out)
}

type errorJSON struct {
	Error string `json:"error"`
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("response-encode-failed", zap.Error(err))
	}
}

func (h *apiHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(errorJSON{Error: message}); err != nil {
		h.logger.Error("response-encode-failed", zap.Error(err))
	}
}
