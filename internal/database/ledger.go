package database

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/models"
)

// Ledger is the persistent record of users (credentials, balance) and
// holdings (shares per ticker per user). All balance and holding mutations
// go through this store, inside a single transaction scope per operation.
type Ledger struct {
	conn *sql.DB
	mu   sync.Mutex
}

// OpenLedger opens (or creates) the ledger store at path and initializes
// its schema.
func OpenLedger(path string) (*Ledger, error) {
	conn, err := openSQLite(path, "migrations/ledger")
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &Ledger{conn: conn}, nil
}

// Close closes the underlying database connection.
func (l *Ledger) Close() error {
	return l.conn.Close()
}

// WithTx runs fn inside one store-wide transaction scope. A buy or sell
// performs its balance read, holding upsert, and balance write under the
// same scope so concurrent trades on one user cannot interleave.
func (l *Ledger) WithTx(fn func(tx *sql.Tx) error) error {
	return withTx(l.conn, &l.mu, fn)
}

// CreateUser registers a new user with the given starting balance and
// returns the generated opaque id. Usernames are case-insensitive; the
// lowercased form is stored. Returns ErrDuplicate when the username is
// already taken.
func (l *Ledger) CreateUser(tx *sql.Tx, username, password string, balance decimal.Decimal) (string, error) {
	username = strings.ToLower(username)

	var existing string
	err := tx.QueryRow(`SELECT id FROM users WHERE username = ?`, username).Scan(&existing)
	if err == nil {
		return "", fmt.Errorf("user %q: %w", username, ErrDuplicate)
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to check username: %w", err)
	}

	id := uuid.NewString()
	_, err = tx.Exec(`INSERT INTO users (id, username, password, balance) VALUES (?, ?, ?, ?)`,
		id, username, password, balance.String())
	if err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}
	return id, nil
}

// Authenticate returns the id of the user matching username and password.
// Passwords are compared in plaintext, preserving the legacy scheme.
// Returns ErrNotFound on unknown username or wrong password.
func (l *Ledger) Authenticate(tx *sql.Tx, username, password string) (string, error) {
	var id string
	err := tx.QueryRow(`SELECT id FROM users WHERE username = ? AND password = ?`,
		strings.ToLower(username), password).Scan(&id)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("credentials for %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to authenticate: %w", err)
	}
	return id, nil
}

// UsernameByID resolves an opaque user id to its username. Returns
// ErrNotFound for an unknown id.
func (l *Ledger) UsernameByID(tx *sql.Tx, id string) (string, error) {
	var username string
	err := tx.QueryRow(`SELECT username FROM users WHERE id = ?`, id).Scan(&username)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("user id %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up user id: %w", err)
	}
	return username, nil
}

// Balance returns the current balance for username. Returns ErrNotFound
// for an unknown user.
func (l *Ledger) Balance(tx *sql.Tx, username string) (decimal.Decimal, error) {
	var raw string
	err := tx.QueryRow(`SELECT balance FROM users WHERE username = ?`,
		strings.ToLower(username)).Scan(&raw)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance %q: %w", raw, err)
	}
	return balance, nil
}

// SetBalance overwrites the balance for username.
func (l *Ledger) SetBalance(tx *sql.Tx, username string, balance decimal.Decimal) error {
	res, err := tx.Exec(`UPDATE users SET balance = ? WHERE username = ?`,
		balance.String(), strings.ToLower(username))
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return nil
}

// Holding returns the holding row for (username, ticker). Returns
// ErrNotFound when the user has never bought the ticker.
func (l *Ledger) Holding(tx *sql.Tx, username, ticker string) (models.Holding, error) {
	h := models.Holding{Username: strings.ToLower(username), Ticker: ticker}
	var raw string
	err := tx.QueryRow(`SELECT amount FROM holdings WHERE username = ? AND ticker = ?`,
		h.Username, ticker).Scan(&raw)
	if err == sql.ErrNoRows {
		return models.Holding{}, fmt.Errorf("holding %s/%s: %w", username, ticker, ErrNotFound)
	}
	if err != nil {
		return models.Holding{}, fmt.Errorf("failed to get holding: %w", err)
	}
	if h.Amount, err = decimal.NewFromString(raw); err != nil {
		return models.Holding{}, fmt.Errorf("failed to parse holding amount %q: %w", raw, err)
	}
	return h, nil
}

// Holdings returns every holding row for username, including rows left at
// zero by a full sell.
func (l *Ledger) Holdings(tx *sql.Tx, username string) ([]models.Holding, error) {
	rows, err := tx.Query(`SELECT username, ticker, amount FROM holdings WHERE username = ?`,
		strings.ToLower(username))
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	var holdings []models.Holding
	for rows.Next() {
		var h models.Holding
		var raw string
		if err := rows.Scan(&h.Username, &h.Ticker, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		if h.Amount, err = decimal.NewFromString(raw); err != nil {
			return nil, fmt.Errorf("failed to parse holding amount %q: %w", raw, err)
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holdings: %w", err)
	}
	return holdings, nil
}

// UpsertHolding creates the holding row or overwrites its amount. Rows are
// kept even when the amount reaches zero.
func (l *Ledger) UpsertHolding(tx *sql.Tx, h models.Holding) error {
	_, err := tx.Exec(`
		INSERT INTO holdings (username, ticker, amount)
		VALUES (?, ?, ?)
		ON CONFLICT (username, ticker) DO UPDATE SET
			amount = excluded.amount
	`, strings.ToLower(h.Username), h.Ticker, h.Amount.String())
	if err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}
	return nil
}
