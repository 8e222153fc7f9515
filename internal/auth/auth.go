// Package auth handles registration and login. Authentication is a plain
// username/password comparison against the ledger; the opaque user id it
// returns doubles as the session key. Known weakness: passwords are stored
// and compared in plaintext, preserved from the legacy system.
package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/database"
)

var (
	// ErrUserExists indicates the username is already registered.
	ErrUserExists = errors.New("auth: user already exists")

	// ErrInvalidCredentials indicates an unknown username or wrong password.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)

// StartingBalance is the balance every new account opens with.
var StartingBalance = decimal.NewFromInt(50000)

// Service backs registration and login with the ledger store.
type Service struct {
	ledger *database.Ledger
}

// NewService creates an auth service over the ledger store.
func NewService(ledger *database.Ledger) *Service {
	return &Service{ledger: ledger}
}

// Register creates a new user with the starting balance and returns its id,
// logging the user in as a side effect.
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	var id string
	err := s.ledger.WithTx(func(tx *sql.Tx) error {
		var err error
		id, err = s.ledger.CreateUser(tx, username, password, StartingBalance)
		if errors.Is(err, database.ErrDuplicate) {
			return fmt.Errorf("register %q: %w", username, ErrUserExists)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Login returns the id of the user matching username and password.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	var id string
	err := s.ledger.WithTx(func(tx *sql.Tx) error {
		var err error
		id, err = s.ledger.Authenticate(tx, username, password)
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("login %q: %w", username, ErrInvalidCredentials)
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
