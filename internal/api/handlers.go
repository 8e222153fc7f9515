// Package api exposes the simulator over HTTP. Every response body carries
// a "valid" boolean: missing or malformed parameters produce 422, domain
// rejections (unknown ticker, bad credentials, insufficient funds) produce
// 200 with valid=false, and store or provider failures produce 500. Raw
// errors are never written to clients.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/auth"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/histcache"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/models"
	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/trading"
)

// Handler holds dependencies for HTTP handlers
type Handler struct {
	history *histcache.Engine
	trader  *trading.Engine
	auth    *auth.Service
	log     *zap.Logger
}

// NewHandler creates a new Handler
func NewHandler(history *histcache.Engine, trader *trading.Engine, authSvc *auth.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		history: history,
		trader:  trader,
		auth:    authSvc,
		log:     log,
	}
}

// barResponse is the wire form of a price bar; dates are YYYY-MM-DD only.
type barResponse struct {
	Date      string          `json:"date"`
	Ticker    string          `json:"ticker"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
	Dividends decimal.Decimal `json:"dividends"`
	Splits    decimal.Decimal `json:"stock_splits"`
}

func toBarResponses(bars []models.PriceBar) []barResponse {
	out := make([]barResponse, len(bars))
	for i, b := range bars {
		out[i] = barResponse{
			Date:      b.Date.Format(models.DateLayout),
			Ticker:    b.Ticker,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			Dividends: b.Dividends,
			Splits:    b.Splits,
		}
	}
	return out
}

// GetStockHistoryByTicker handles GET /get_stock_history_by_ticker
func (h *Handler) GetStockHistoryByTicker(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ticker := q.Get("ticker")
	if ticker == "" {
		respondInvalid(w, http.StatusUnprocessableEntity)
		return
	}
	start, err := time.ParseInLocation(models.DateLayout, q.Get("start"), time.UTC)
	if err != nil {
		respondInvalid(w, http.StatusUnprocessableEntity)
		return
	}
	end, err := time.ParseInLocation(models.DateLayout, q.Get("end"), time.UTC)
	if err != nil {
		respondInvalid(w, http.StatusUnprocessableEntity)
		return
	}

	bars, err := h.history.GetHistory(r.Context(), ticker, start, end)
	switch {
	case errors.Is(err, histcache.ErrInvalidRange):
		respondInvalid(w, http.StatusUnprocessableEntity)
		return
	case errors.Is(err, histcache.ErrNoData):
		// Confirmed absence of data is a valid answer, not a failure.
		respondJSON(w, http.StatusOK, map[string]interface{}{"valid": true, ticker: nil})
		return
	case err != nil:
		h.serverError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"valid": true, ticker: toBarResponses(bars)})
}

// GetCurrentStockPrice handles GET /get_current_stock_price
func (h *Handler) GetCurrentStockPrice(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		respondInvalid(w, http.StatusUnprocessableEntity)
		return
	}

	price, err := h.history.CurrentPrice(r.Context(), ticker)
	if errors.Is(err, histcache.ErrNoData) {
		respondInvalid(w, http.StatusOK)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"valid": true, "price": price})
}

// GetBalance handles GET /get_balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondInvalid(w, http.StatusUnprocessableEntity)
		return
	}

	balance, err := h.trader.Balance(r.Context(), id)
	if errors.Is(err, trading.ErrInvalid) {
		respondInvalid(w, http.StatusOK)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"valid": true, "balance": balance})
}

// BuyStock handles GET /buy_stock
func (h *Handler) BuyStock(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.trader.Buy)
}

// SellStock handles GET /sell_stock
func (h *Handler) SellStock(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.trader.Sell)
}

func (h *Handler) trade(w http.ResponseWriter, r *http.Request,
	execute func(ctx context.Context, id, ticker string, amount decimal.Decimal) error) {
	q := r.URL.Query()
	id := q.Get("id")
	ticker := q.Get("ticker")
	rawAmount := q.Get("amount")
	if id == "" || ticker == "" || rawAmount == "" {
		respondInvalid(w, http.StatusUnprocessableEntity)
		return
	}
	amount, err := strconv.Atoi(rawAmount)
	if err != nil || amount < 0 {
		respondInvalid(w, http.StatusUnprocessableEntity)
		return
	}

	err = execute(r.Context(), id, ticker, decimal.NewFromInt(int64(amount)))
	if errors.Is(err, trading.ErrInvalid) {
		respondInvalid(w, http.StatusOK)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"valid": true})
}

// LoginUser handles GET /login_user
func (h *Handler) LoginUser(w http.ResponseWriter, r *http.Request) {
	username, password := r.URL.Query().Get("username"), r.URL.Query().Get("password")
	if username == "" || password == "" {
		respondInvalid(w, http.StatusUnprocessableEntity)
		return
	}

	id, err := h.auth.Login(r.Context(), username, password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		respondInvalid(w, http.StatusOK)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"valid": true, "sessionKey": id})
}

// CreateUser handles GET /create_user
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	username, password := r.URL.Query().Get("username"), r.URL.Query().Get("password")
	if username == "" || password == "" {
		respondInvalid(w, http.StatusUnprocessableEntity)
		return
	}

	id, err := h.auth.Register(r.Context(), username, password)
	if errors.Is(err, auth.ErrUserExists) {
		respondInvalid(w, http.StatusOK)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"valid": true, "sessionKey": id})
}

// GetUserTickerData handles GET /get_user_ticker_data
func (h *Handler) GetUserTickerData(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondInvalid(w, http.StatusUnprocessableEntity)
		return
	}

	holdings, err := h.trader.Holdings(r.Context(), id)
	if errors.Is(err, trading.ErrInvalid) {
		respondInvalid(w, http.StatusOK)
		return
	}
	if err != nil {
		h.serverError(w, r, err)
		return
	}
	if holdings == nil {
		holdings = []models.Holding{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"valid": true, "user_ticker_data": holdings})
}

// HealthCheck handles GET /health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// logRequests logs every request at debug level.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		h.log.Debug("request",
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
	respondInvalid(w, http.StatusInternalServerError)
}

func respondInvalid(w http.ResponseWriter, status int) {
	respondJSON(w, status, map[string]interface{}{"valid": false})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
