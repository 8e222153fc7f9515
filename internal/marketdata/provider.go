// Package marketdata fetches daily price bars from the upstream provider.
// The provider is treated as a black box that returns whatever recorded
// history it has: an empty result means "no more data exists" and is not an
// error, while transport or decoding failures propagate to the caller.
package marketdata

import (
	"context"
	"time"

	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/models"
)

// Provider defines the upstream source of daily price bars.
type Provider interface {
	// History returns the bars for ticker with start <= date <= end,
	// ascending. A nil slice with nil error means no recorded data in the
	// range.
	History(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error)

	// FullHistory returns every recorded bar for ticker, ascending.
	FullHistory(ctx context.Context, ticker string) ([]models.PriceBar, error)

	// Latest returns the most recent single bar for ticker, or nil when the
	// provider has none.
	Latest(ctx context.Context, ticker string) (*models.PriceBar, error)
}
