package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/models"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := OpenLedger(filepath.Join(t.TempDir(), "user_data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func TestLedgerUsers(t *testing.T) {
	ledger := newTestLedger(t)
	start := decimal.NewFromInt(50000)

	var id string
	t.Run("CreateUser stores lowercased username and returns an id", func(t *testing.T) {
		err := ledger.WithTx(func(tx *sql.Tx) error {
			var err error
			id, err = ledger.CreateUser(tx, "Bob", "pw1", start)
			return err
		})
		require.NoError(t, err)
		assert.NotEmpty(t, id)

		err = ledger.WithTx(func(tx *sql.Tx) error {
			username, err := ledger.UsernameByID(tx, id)
			require.NoError(t, err)
			assert.Equal(t, "bob", username)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("CreateUser rejects duplicates case-insensitively", func(t *testing.T) {
		err := ledger.WithTx(func(tx *sql.Tx) error {
			_, err := ledger.CreateUser(tx, "BOB", "other", start)
			return err
		})
		require.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("Authenticate matches lowercased username and exact password", func(t *testing.T) {
		err := ledger.WithTx(func(tx *sql.Tx) error {
			got, err := ledger.Authenticate(tx, "BoB", "pw1")
			require.NoError(t, err)
			assert.Equal(t, id, got)

			_, err = ledger.Authenticate(tx, "bob", "wrong")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = ledger.Authenticate(tx, "nobody", "pw1")
			assert.ErrorIs(t, err, ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("Balance and SetBalance round-trip", func(t *testing.T) {
		err := ledger.WithTx(func(tx *sql.Tx) error {
			balance, err := ledger.Balance(tx, "bob")
			require.NoError(t, err)
			assert.True(t, start.Equal(balance))

			require.NoError(t, ledger.SetBalance(tx, "bob", decimal.NewFromFloat(49000.50)))
			balance, err = ledger.Balance(tx, "bob")
			require.NoError(t, err)
			assert.True(t, decimal.NewFromFloat(49000.50).Equal(balance))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("unknown user surfaces ErrNotFound", func(t *testing.T) {
		err := ledger.WithTx(func(tx *sql.Tx) error {
			_, err := ledger.Balance(tx, "ghost")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = ledger.UsernameByID(tx, "bogus-id")
			assert.ErrorIs(t, err, ErrNotFound)

			err = ledger.SetBalance(tx, "ghost", decimal.Zero)
			assert.ErrorIs(t, err, ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})
}

func TestLedgerHoldings(t *testing.T) {
	ledger := newTestLedger(t)

	require.NoError(t, ledger.WithTx(func(tx *sql.Tx) error {
		_, err := ledger.CreateUser(tx, "alice", "pw", decimal.NewFromInt(50000))
		return err
	}))

	t.Run("Holding before first buy is ErrNotFound", func(t *testing.T) {
		err := ledger.WithTx(func(tx *sql.Tx) error {
			_, err := ledger.Holding(tx, "alice", "AAPL")
			assert.ErrorIs(t, err, ErrNotFound)
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("UpsertHolding creates then overwrites the amount", func(t *testing.T) {
		err := ledger.WithTx(func(tx *sql.Tx) error {
			require.NoError(t, ledger.UpsertHolding(tx, models.Holding{
				Username: "alice", Ticker: "AAPL", Amount: decimal.NewFromInt(10),
			}))
			require.NoError(t, ledger.UpsertHolding(tx, models.Holding{
				Username: "alice", Ticker: "AAPL", Amount: decimal.NewFromInt(4),
			}))

			h, err := ledger.Holding(tx, "alice", "AAPL")
			require.NoError(t, err)
			assert.True(t, decimal.NewFromInt(4).Equal(h.Amount))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("zero-amount rows are kept and listed", func(t *testing.T) {
		err := ledger.WithTx(func(tx *sql.Tx) error {
			require.NoError(t, ledger.UpsertHolding(tx, models.Holding{
				Username: "alice", Ticker: "AAPL", Amount: decimal.Zero,
			}))

			holdings, err := ledger.Holdings(tx, "alice")
			require.NoError(t, err)
			require.Len(t, holdings, 1)
			assert.Equal(t, "AAPL", holdings[0].Ticker)
			assert.True(t, holdings[0].Amount.IsZero())
			return nil
		})
		require.NoError(t, err)
	})
}
