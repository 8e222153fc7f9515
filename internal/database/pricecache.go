package database

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/models"
)

// PriceCache is the persistent cache of daily price bars, keyed by
// (ticker, date). Rows are only ever added or idempotently overwritten by
// re-fetches of the same key; nothing deletes them in normal operation.
type PriceCache struct {
	conn *sql.DB
	mu   sync.Mutex
}

// OpenPriceCache opens (or creates) the price cache store at path and
// initializes its schema.
func OpenPriceCache(path string) (*PriceCache, error) {
	conn, err := openSQLite(path, "migrations/pricecache")
	if err != nil {
		return nil, fmt.Errorf("open price cache: %w", err)
	}
	return &PriceCache{conn: conn}, nil
}

// Close closes the underlying database connection.
func (c *PriceCache) Close() error {
	return c.conn.Close()
}

// WithTx runs fn inside one store-wide transaction scope. The cache
// coherency engine holds a single scope across its check-fetch-merge-query
// sequence so concurrent requests cannot both observe the same gap.
func (c *PriceCache) WithTx(fn func(tx *sql.Tx) error) error {
	return withTx(c.conn, &c.mu, fn)
}

// LastDate returns the most recent cached bar date for ticker. ok is false
// when the ticker has no cached rows at all.
func (c *PriceCache) LastDate(tx *sql.Tx, ticker string) (last time.Time, ok bool, err error) {
	var raw sql.NullString
	err = tx.QueryRow(`SELECT MAX(date) FROM stock_data WHERE ticker = ?`, ticker).Scan(&raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get last date for %s: %w", ticker, err)
	}
	if !raw.Valid {
		return time.Time{}, false, nil
	}
	last, err = time.ParseInLocation(models.DateLayout, raw.String, time.UTC)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse cached date %q: %w", raw.String, err)
	}
	return last, true, nil
}

// Range returns the cached bars for ticker with start <= date <= end,
// ordered by date ascending.
func (c *PriceCache) Range(tx *sql.Tx, ticker string, start, end time.Time) ([]models.PriceBar, error) {
	rows, err := tx.Query(`
		SELECT date, ticker, open, high, low, close, volume, dividends, stock_splits
		FROM stock_data
		WHERE ticker = ? AND date BETWEEN ? AND ?
		ORDER BY date ASC
	`, ticker, start.Format(models.DateLayout), end.Format(models.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", ticker, err)
	}
	defer rows.Close()

	var bars []models.PriceBar
	for rows.Next() {
		bar, err := scanBar(rows)
		if err != nil {
			return nil, err
		}
		bars = append(bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bars for %s: %w", ticker, err)
	}
	return bars, nil
}

// UpsertBars merges fetched bars into the cache. Conflicts on (ticker, date)
// are overwritten: a re-fetch only ever targets dates the engine just
// computed as missing, so the fetched values take precedence.
func (c *PriceCache) UpsertBars(tx *sql.Tx, bars []models.PriceBar) error {
	stmt, err := tx.Prepare(`
		INSERT INTO stock_data (date, ticker, open, high, low, close, volume, dividends, stock_splits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (ticker, date) DO UPDATE SET
			open = excluded.open,
			high = excluded.high,
			low = excluded.low,
			close = excluded.close,
			volume = excluded.volume,
			dividends = excluded.dividends,
			stock_splits = excluded.stock_splits
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		_, err := stmt.Exec(
			b.Date.Format(models.DateLayout), b.Ticker,
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(),
			b.Volume, b.Dividends.String(), b.Splits.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert bar %s %s: %w",
				b.Ticker, b.Date.Format(models.DateLayout), err)
		}
	}
	return nil
}

func scanBar(rows *sql.Rows) (models.PriceBar, error) {
	var b models.PriceBar
	var date, open, high, low, closePx, dividends, splits string

	err := rows.Scan(&date, &b.Ticker, &open, &high, &low, &closePx, &b.Volume, &dividends, &splits)
	if err != nil {
		return models.PriceBar{}, fmt.Errorf("failed to scan bar: %w", err)
	}

	if b.Date, err = time.ParseInLocation(models.DateLayout, date, time.UTC); err != nil {
		return models.PriceBar{}, fmt.Errorf("failed to parse bar date %q: %w", date, err)
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&b.Open, open}, {&b.High, high}, {&b.Low, low},
		{&b.Close, closePx}, {&b.Dividends, dividends}, {&b.Splits, splits},
	} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return models.PriceBar{}, fmt.Errorf("failed to parse bar value %q: %w", f.raw, err)
		}
	}
	return b, nil
}
