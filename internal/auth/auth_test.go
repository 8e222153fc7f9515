package auth

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/database"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	ledger, err := database.OpenLedger(filepath.Join(t.TempDir(), "user_data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })
	return NewService(ledger)
}

func TestRegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "Bob", "pw1")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	t.Run("duplicate registration fails case-insensitively", func(t *testing.T) {
		_, err := svc.Register(ctx, "BOB", "other")
		assert.ErrorIs(t, err, ErrUserExists)
	})

	t.Run("login returns the same id as registration", func(t *testing.T) {
		got, err := svc.Login(ctx, "bob", "pw1")
		require.NoError(t, err)
		assert.Equal(t, id, got)
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		_, err := svc.Login(ctx, "bob", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown username is rejected", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody", "pw1")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}
