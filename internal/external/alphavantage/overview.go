package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/wonny/aegis-signal/internal/respcache"
)

// Overview fetches company fundamentals
func (c *Client) Overview(ctx context.Context, symbol string) (*Overview, error) {
	body, err := c.Query(ctx, respcache.CategoryFundamentals, map[string]string{
		"function": "OVERVIEW",
		"symbol":   symbol,
	})
	if err != nil {
		return nil, err
	}
	return parseOverview(body)
}

func parseOverview(body []byte) (*Overview, error) {
	var raw map[string]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode overview: %w", err)
	}
	if raw["Symbol"] == "" {
		return nil, fmt.Errorf("overview: %w", ErrNoData)
	}

	return &Overview{
		Symbol:             raw["Symbol"],
		Name:               raw["Name"],
		Sector:             raw["Sector"],
		MarketCap:          parseNumberPtr(raw["MarketCapitalization"]),
		PERatio:            parseNumberPtr(raw["PERatio"]),
		PEGRatio:           parseNumberPtr(raw["PEGRatio"]),
		EPS:                parseNumberPtr(raw["EPS"]),
		ProfitMargin:       parseNumberPtr(raw["ProfitMargin"]),
		OperatingMargin:    parseNumberPtr(raw["OperatingMarginTTM"]),
		ReturnOnEquity:     parseNumberPtr(raw["ReturnOnEquityTTM"]),
		DebtToEquity:       parseNumberPtr(raw["DebtToEquityRatio"]),
		RevenueGrowthYOY:   parseNumberPtr(raw["QuarterlyRevenueGrowthYOY"]),
		EarningsGrowthYOY:  parseNumberPtr(raw["QuarterlyEarningsGrowthYOY"]),
		AnalystTargetPrice: parseNumberPtr(raw["AnalystTargetPrice"]),
		Beta:               parseNumberPtr(raw["Beta"]),
	}, nil
}
