package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wonny/aegis-signal/internal/respcache"
)

// GlobalQuote fetches the latest quote
func (c *Client) GlobalQuote(ctx context.Context, symbol string) (*Quote, error) {
	body, err := c.Query(ctx, respcache.CategoryQuote, map[string]string{
		"function": "GLOBAL_QUOTE",
		"symbol":   symbol,
	})
	if err != nil {
		return nil, err
	}
	return parseGlobalQuote(body)
}

func parseGlobalQuote(body []byte) (*Quote, error) {
	var resp struct {
		GlobalQuote map[string]string `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	q := resp.GlobalQuote
	if len(q) == 0 {
		return nil, fmt.Errorf("quote: %w", ErrNoData)
	}

	price, ok := parseNumber(q["05. price"])
	if !ok {
		return nil, fmt.Errorf("quote: %w: missing price", ErrNoData)
	}

	quote := &Quote{
		Symbol:        q["01. symbol"],
		Open:          parseNumberOrZero(q["02. open"]),
		High:          parseNumberOrZero(q["03. high"]),
		Low:           parseNumberOrZero(q["04. low"]),
		Price:         price,
		Volume:        parseNumberOrZero(q["06. volume"]),
		PreviousClose: parseNumberOrZero(q["08. previous close"]),
		Change:        parseNumberOrZero(q["09. change"]),
		ChangePercent: parseNumberOrZero(q["10. change percent"]),
	}
	if day, err := time.Parse("2006-01-02", q["07. latest trading day"]); err == nil {
		quote.LatestDay = day
	}
	return quote, nil
}

// DailySeries fetches compact daily bars, oldest first
func (c *Client) DailySeries(ctx context.Context, symbol string) ([]Bar, error) {
	body, err := c.Query(ctx, respcache.CategoryTimeSeries, map[string]string{
		"function":   "TIME_SERIES_DAILY",
		"symbol":     symbol,
		"outputsize": "compact",
	})
	if err != nil {
		return nil, err
	}
	return parseDailySeries(body)
}

func parseDailySeries(body []byte) ([]Bar, error) {
	var resp map[string]json.RawMessage
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode series: %w", err)
	}

	var raw json.RawMessage
	for k, v := range resp {
		if strings.HasPrefix(k, "Time Series") {
			raw = v
			break
		}
	}
	if raw == nil {
		return nil, fmt.Errorf("series: %w", ErrNoData)
	}

	var rows map[string]map[string]string
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode series rows: %w", err)
	}

	bars := make([]Bar, 0, len(rows))
	for day, row := range rows {
		date, err := time.Parse("2006-01-02", day)
		if err != nil {
			continue
		}
		closePrice, ok := parseNumber(row["4. close"])
		if !ok {
			continue
		}
		bars = append(bars, Bar{
			Date:   date,
			Open:   parseNumberOrZero(row["1. open"]),
			High:   parseNumberOrZero(row["2. high"]),
			Low:    parseNumberOrZero(row["3. low"]),
			Close:  closePrice,
			Volume: parseNumberOrZero(row["5. volume"]),
		})
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("series: %w", ErrNoData)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
	return bars, nil
}
