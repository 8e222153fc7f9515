package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/SSDP-StockSim/stock-market-simulator-server-manager/internal/models"
)

// Compile-time interface check.
var _ Provider = (*YahooProvider)(nil)

const defaultChartBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// YahooProvider implements Provider using the Yahoo Finance chart API.
type YahooProvider struct {
	client  *http.Client
	baseURL string
}

// NewYahooProvider creates a Yahoo Finance provider. Calls block for at most
// timeout; exhaustion surfaces as an ordinary fetch error.
func NewYahooProvider(timeout time.Duration) *YahooProvider {
	return &YahooProvider{
		client:  &http.Client{Timeout: timeout},
		baseURL: defaultChartBaseURL,
	}
}

// yahooChart is the response structure from the Yahoo Finance chart API.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []interface{} `json:"open"`
					High   []interface{} `json:"high"`
					Low    []interface{} `json:"low"`
					Close  []interface{} `json:"close"`
					Volume []interface{} `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
			Events struct {
				Dividends map[string]struct {
					Amount float64 `json:"amount"`
					Date   int64   `json:"date"`
				} `json:"dividends"`
				Splits map[string]struct {
					Date        int64 `json:"date"`
					Numerator   int64 `json:"numerator"`
					Denominator int64 `json:"denominator"`
				} `json:"splits"`
			} `json:"events"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// History returns daily bars for ticker within [start, end].
func (p *YahooProvider) History(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error) {
	// period2 is exclusive, so push it one day past the inclusive end.
	params := url.Values{
		"period1": {strconv.FormatInt(models.Day(start).Unix(), 10)},
		"period2": {strconv.FormatInt(models.Day(end).AddDate(0, 0, 1).Unix(), 10)},
	}
	return p.fetchChart(ctx, ticker, params)
}

// FullHistory returns every recorded daily bar for ticker.
func (p *YahooProvider) FullHistory(ctx context.Context, ticker string) ([]models.PriceBar, error) {
	return p.fetchChart(ctx, ticker, url.Values{"range": {"max"}})
}

// Latest returns the most recent daily bar for ticker, bypassing any cache.
func (p *YahooProvider) Latest(ctx context.Context, ticker string) (*models.PriceBar, error) {
	bars, err := p.fetchChart(ctx, ticker, url.Values{"range": {"1d"}})
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return &bars[len(bars)-1], nil
}

func (p *YahooProvider) fetchChart(ctx context.Context, ticker string, params url.Values) ([]models.PriceBar, error) {
	params.Set("interval", "1d")
	params.Set("events", "div|split")
	u := fmt.Sprintf("%s/%s?%s", p.baseURL, url.PathEscape(ticker), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("yahoo fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("yahoo read body: %w", err)
	}

	// Unknown tickers come back 404 with a "Not Found" chart error; treat
	// that as no data rather than a transport failure.
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("yahoo: status %d, body: %s", resp.StatusCode, string(body))
	}

	var chart yahooChart
	if err := json.Unmarshal(body, &chart); err != nil {
		return nil, fmt.Errorf("yahoo decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Timestamp) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	dividends := make(map[string]decimal.Decimal, len(result.Events.Dividends))
	for _, d := range result.Events.Dividends {
		day := models.Day(time.Unix(d.Date, 0).UTC()).Format(models.DateLayout)
		dividends[day] = decimal.NewFromFloat(d.Amount)
	}
	splits := make(map[string]decimal.Decimal, len(result.Events.Splits))
	for _, s := range result.Events.Splits {
		if s.Denominator == 0 {
			continue
		}
		day := models.Day(time.Unix(s.Date, 0).UTC()).Format(models.DateLayout)
		splits[day] = decimal.NewFromInt(s.Numerator).Div(decimal.NewFromInt(s.Denominator))
	}

	bars := make([]models.PriceBar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o := toFloat(quote.Open[i])
		h := toFloat(quote.High[i])
		l := toFloat(quote.Low[i])
		c := toFloat(quote.Close[i])
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // skip null bars (holidays etc.)
		}

		date := models.Day(time.Unix(ts, 0).UTC())
		day := date.Format(models.DateLayout)
		bars = append(bars, models.PriceBar{
			Ticker:    ticker,
			Date:      date,
			Open:      decimal.NewFromFloat(o),
			High:      decimal.NewFromFloat(h),
			Low:       decimal.NewFromFloat(l),
			Close:     decimal.NewFromFloat(c),
			Volume:    int64(toFloat(quote.Volume[i])),
			Dividends: dividends[day],
			Splits:    splits[day],
		})
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}
