package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered account. Passwords are stored and compared in
// plaintext, matching the legacy behavior; the ID doubles as the session key
// handed back by login.
type User struct {
	ID       string          `json:"id"`
	Username string          `json:"username"`
	Password string          `json:"-"`
	Balance  decimal.Decimal `json:"balance"`
}

// Holding represents the number of shares of one ticker owned by one user.
// Keyed by (Username, Ticker). A sell down to zero leaves the row in place
// with Amount == 0; rows are never deleted.
type Holding struct {
	Username string          `json:"username"`
	Ticker   string          `json:"ticker"`
	Amount   decimal.Decimal `json:"amount"`
}

// TradeEvent is published to Kafka after a buy or sell commits.
type TradeEvent struct {
	EventType string          `json:"event_type"` // TRADE_BUY or TRADE_SELL
	Username  string          `json:"username"`
	Ticker    string          `json:"ticker"`
	Amount    decimal.Decimal `json:"amount"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
}
