package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/models"
)

func utcDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// chartFixture is a trimmed chart API payload: three trading days, one null
// bar (holiday), a dividend on day two and a 2:1 split on day three.
func chartFixture() string {
	days := []time.Time{
		utcDay(2024, 1, 2),
		utcDay(2024, 1, 3),
		utcDay(2024, 1, 4),
		utcDay(2024, 1, 5),
	}
	return fmt.Sprintf(`{
	  "chart": {
	    "result": [{
	      "timestamp": [%d, %d, %d, %d],
	      "indicators": {
	        "quote": [{
	          "open":   [10.0, null, 11.0, 12.0],
	          "high":   [10.5, null, 11.5, 12.5],
	          "low":    [ 9.5, null, 10.5, 11.5],
	          "close":  [10.2, null, 11.2, 12.2],
	          "volume": [1000, null, 2000, 3000]
	        }]
	      },
	      "events": {
	        "dividends": {"%d": {"amount": 0.25, "date": %d}},
	        "splits": {"%d": {"date": %d, "numerator": 2, "denominator": 1}}
	      }
	    }],
	    "error": null
	  }
	}`,
		days[0].Unix(), days[1].Unix(), days[2].Unix(), days[3].Unix(),
		days[2].Unix(), days[2].Unix(),
		days[3].Unix(), days[3].Unix())
}

func newTestProvider(handler http.HandlerFunc) (*YahooProvider, *httptest.Server) {
	srv := httptest.NewServer(handler)
	p := NewYahooProvider(5 * time.Second)
	p.baseURL = srv.URL
	return p, srv
}

func TestFullHistoryParsesChart(t *testing.T) {
	var gotQuery url.Values
	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		assert.Equal(t, "/MSFT", r.URL.Path)
		fmt.Fprint(w, chartFixture())
	})
	defer srv.Close()

	bars, err := p.FullHistory(context.Background(), "MSFT")
	require.NoError(t, err)

	assert.Equal(t, "max", gotQuery.Get("range"))
	assert.Equal(t, "1d", gotQuery.Get("interval"))
	assert.Equal(t, "div|split", gotQuery.Get("events"))

	// The null bar on Jan 3 is dropped.
	require.Len(t, bars, 3)
	assert.Equal(t, utcDay(2024, 1, 2), bars[0].Date)
	assert.Equal(t, utcDay(2024, 1, 4), bars[1].Date)
	assert.Equal(t, utcDay(2024, 1, 5), bars[2].Date)
	for i := 1; i < len(bars); i++ {
		assert.True(t, bars[i-1].Date.Before(bars[i].Date))
	}

	assert.Equal(t, "MSFT", bars[0].Ticker)
	assert.True(t, decimal.NewFromFloat(10.2).Equal(bars[0].Close))
	assert.Equal(t, int64(1000), bars[0].Volume)

	// Dividend and split land on their own days only.
	assert.True(t, bars[0].Dividends.IsZero())
	assert.True(t, decimal.NewFromFloat(0.25).Equal(bars[1].Dividends))
	assert.True(t, decimal.NewFromInt(2).Equal(bars[2].Splits))
	assert.True(t, bars[1].Splits.IsZero())
}

func TestHistorySendsInclusiveRange(t *testing.T) {
	var gotQuery url.Values
	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		fmt.Fprint(w, chartFixture())
	})
	defer srv.Close()

	start, end := utcDay(2024, 1, 2), utcDay(2024, 1, 5)
	_, err := p.History(context.Background(), "MSFT", start, end)
	require.NoError(t, err)

	// period2 is exclusive upstream, so the inclusive end is pushed one day.
	assert.Equal(t, strconv.FormatInt(start.Unix(), 10), gotQuery.Get("period1"))
	assert.Equal(t, strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10), gotQuery.Get("period2"))
}

func TestLatestReturnsMostRecentBar(t *testing.T) {
	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1d", r.URL.Query().Get("range"))
		fmt.Fprint(w, chartFixture())
	})
	defer srv.Close()

	bar, err := p.Latest(context.Background(), "MSFT")
	require.NoError(t, err)
	require.NotNil(t, bar)
	assert.Equal(t, utcDay(2024, 1, 5), bar.Date)
	assert.True(t, decimal.NewFromFloat(12.2).Equal(bar.Close))
}

func TestUnknownTickerIsNoData(t *testing.T) {
	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`)
	})
	defer srv.Close()

	bars, err := p.FullHistory(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, bars)

	bar, err := p.Latest(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, bar)
}

func TestUpstreamFailuresSurfaceAsErrors(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
		defer srv.Close()

		_, err := p.FullHistory(context.Background(), "MSFT")
		assert.Error(t, err)
	})

	t.Run("chart-level error", func(t *testing.T) {
		p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"chart":{"result":null,"error":{"code":"Bad Request","description":"invalid period"}}}`)
		})
		defer srv.Close()

		_, err := p.FullHistory(context.Background(), "MSFT")
		assert.Error(t, err)
	})

	t.Run("empty result set is no data", func(t *testing.T) {
		p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"chart":{"result":[],"error":null}}`)
		})
		defer srv.Close()

		bars, err := p.FullHistory(context.Background(), "MSFT")
		require.NoError(t, err)
		assert.Nil(t, bars)
	})
}

func TestDatesAreTruncatedToUTCDays(t *testing.T) {
	// A timestamp in the middle of the day still maps to its UTC midnight.
	noon := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
	payload := fmt.Sprintf(`{
	  "chart": {
	    "result": [{
	      "timestamp": [%d],
	      "indicators": {"quote": [{
	        "open": [10.0], "high": [10.5], "low": [9.5], "close": [10.2], "volume": [1000]
	      }]},
	      "events": {}
	    }],
	    "error": null
	  }
	}`, noon.Unix())

	p, srv := newTestProvider(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, payload)
	})
	defer srv.Close()

	bars, err := p.FullHistory(context.Background(), "MSFT")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, models.Day(noon), bars[0].Date)
	assert.Equal(t, utcDay(2024, 1, 2), bars[0].Date)
}
