package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(handler.logRequests)

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	// Price history and quotes
	r.HandleFunc("/get_stock_history_by_ticker", handler.GetStockHistoryByTicker).Methods("GET")
	r.HandleFunc("/get_current_stock_price", handler.GetCurrentStockPrice).Methods("GET")

	// Accounts and sessions
	r.HandleFunc("/create_user", handler.CreateUser).Methods("GET")
	r.HandleFunc("/login_user", handler.LoginUser).Methods("GET")
	r.HandleFunc("/get_balance", handler.GetBalance).Methods("GET")
	r.HandleFunc("/get_user_ticker_data", handler.GetUserTickerData).Methods("GET")

	// Trading
	r.HandleFunc("/buy_stock", handler.BuyStock).Methods("GET")
	r.HandleFunc("/sell_stock", handler.SellStock).Methods("GET")

	return r
}
