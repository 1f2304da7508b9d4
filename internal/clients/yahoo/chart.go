package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aristath/frontier/internal/clientdata"
	"github.com/aristath/frontier/internal/modules/marketdata"
)

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiError     `json:"error"`
	} `json:"chart"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Meta       chartMeta `json:"meta"`
	Timestamp  []int64   `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Close []*float64 `json:"close"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

type chartMeta struct {
	Symbol             string  `json:"symbol"`
	Currency           string  `json:"currency"`
	ExchangeName       string  `json:"exchangeName"`
	FullExchangeName   string  `json:"fullExchangeName"`
	LongName           string  `json:"longName"`
	ShortName          string  `json:"shortName"`
	RegularMarketPrice float64 `json:"regularMarketPrice"`
	ChartPreviousClose float64 `json:"chartPreviousClose"`
	PreviousClose      float64 `json:"previousClose"`
	RegularMarketTime  int64   `json:"regularMarketTime"`
	FiftyTwoWeekHigh   float64 `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow    float64 `json:"fiftyTwoWeekLow"`
}

// Quote is the latest market snapshot for a symbol.
type Quote struct {
	Symbol        string    `json:"symbol" msgpack:"symbol"`
	Name          string    `json:"name" msgpack:"name"`
	Currency      string    `json:"currency" msgpack:"currency"`
	Exchange      string    `json:"exchange" msgpack:"exchange"`
	Price         float64   `json:"price" msgpack:"price"`
	PreviousClose float64   `json:"previousClose" msgpack:"previous_close"`
	Change        float64   `json:"change" msgpack:"change"`
	ChangePercent float64   `json:"changePercent" msgpack:"change_percent"`
	High52Week    float64   `json:"fiftyTwoWeekHigh" msgpack:"high_52w"`
	Low52Week     float64   `json:"fiftyTwoWeekLow" msgpack:"low_52w"`
	MarketTime    time.Time `json:"marketTime" msgpack:"market_time"`
}

// GetDailyPrices returns daily closes between from and to (inclusive), oldest first.
// Adjusted closes are preferred; days without a close are skipped.
// If the API fails, stale cached data is returned when available.
func (c *Client) GetDailyPrices(ctx context.Context, symbol string, from, to time.Time) ([]marketdata.PricePoint, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	key := fmt.Sprintf("%s|%s|%s", symbol, from.Format("2006-01-02"), to.Format("2006-01-02"))

	var points []marketdata.PricePoint
	if c.fromCache(clientdata.TableHistory, key, &points) {
		c.log.Debug().Str("symbol", symbol).Msg("Yahoo history cache hit")
		return points, nil
	}

	params := url.Values{}
	params.Set("period1", strconv.FormatInt(from.Unix(), 10))
	// period2 is exclusive
	params.Set("period2", strconv.FormatInt(to.AddDate(0, 0, 1).Unix(), 10))
	params.Set("interval", "1d")
	params.Set("events", "history")
	params.Set("includeAdjustedClose", "true")

	result, err := c.chart(ctx, symbol, params)
	if err != nil {
		if !errors.Is(err, ErrSymbolNotFound) && c.fromStaleCache(clientdata.TableHistory, key, &points) {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("API failed, using stale cached history")
			return points, nil
		}
		return nil, err
	}

	points = extractPoints(result)
	if len(points) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrNoData)
	}

	c.setCache(clientdata.TableHistory, key, points, clientdata.TTLHistory)
	return points, nil
}

// GetQuote returns the latest quote for symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (*Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	var quote Quote
	if c.fromCache(clientdata.TableQuote, symbol, &quote) {
		return &quote, nil
	}

	params := url.Values{}
	params.Set("range", "1d")
	params.Set("interval", "1d")

	result, err := c.chart(ctx, symbol, params)
	if err != nil {
		if !errors.Is(err, ErrSymbolNotFound) && c.fromStaleCache(clientdata.TableQuote, symbol, &quote) {
			c.log.Warn().Err(err).Str("symbol", symbol).Msg("API failed, using stale cached quote")
			return &quote, nil
		}
		return nil, err
	}

	quote = quoteFromMeta(result.Meta)
	if quote.Symbol == "" {
		quote.Symbol = symbol
	}

	c.setCache(clientdata.TableQuote, symbol, quote, clientdata.TTLQuote)
	return &quote, nil
}

func (c *Client) chart(ctx context.Context, symbol string, params url.Values) (*chartResult, error) {
	if symbol == "" {
		return nil, fmt.Errorf("empty symbol: %w", ErrSymbolNotFound)
	}

	var resp chartResponse
	if err := c.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), params, &resp); err != nil {
		if errors.Is(err, ErrSymbolNotFound) {
			return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
		}
		return nil, fmt.Errorf("chart request for %s failed: %w", symbol, err)
	}

	if resp.Chart.Error != nil {
		if resp.Chart.Error.Code == "Not Found" {
			return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
		}
		return nil, fmt.Errorf("chart error for %s: %s", symbol, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}

	return &resp.Chart.Result[0], nil
}

func extractPoints(r *chartResult) []marketdata.PricePoint {
	var closes []*float64
	if len(r.Indicators.AdjClose) > 0 && len(r.Indicators.AdjClose[0].AdjClose) == len(r.Timestamp) {
		closes = r.Indicators.AdjClose[0].AdjClose
	} else if len(r.Indicators.Quote) > 0 {
		closes = r.Indicators.Quote[0].Close
	}

	points := make([]marketdata.PricePoint, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			continue
		}
		date := time.Unix(ts, 0).UTC()
		date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
		// Intraday bars for the current session share the last day; keep the latest.
		if n := len(points); n > 0 && !date.After(points[n-1].Date) {
			points[n-1].Close = *closes[i]
			continue
		}
		points = append(points, marketdata.PricePoint{Date: date, Close: *closes[i]})
	}
	return points
}

func quoteFromMeta(m chartMeta) Quote {
	prev := m.ChartPreviousClose
	if prev == 0 {
		prev = m.PreviousClose
	}
	name := m.LongName
	if name == "" {
		name = m.ShortName
	}
	exchange := m.FullExchangeName
	if exchange == "" {
		exchange = m.ExchangeName
	}

	q := Quote{
		Symbol:        m.Symbol,
		Name:          name,
		Currency:      m.Currency,
		Exchange:      exchange,
		Price:         m.RegularMarketPrice,
		PreviousClose: prev,
		High52Week:    m.FiftyTwoWeekHigh,
		Low52Week:     m.FiftyTwoWeekLow,
	}
	if m.RegularMarketTime > 0 {
		q.MarketTime = time.Unix(m.RegularMarketTime, 0).UTC()
	}
	if prev > 0 {
		q.Change = m.RegularMarketPrice - prev
		q.ChangePercent = q.Change / prev * 100
	}
	return q
}
