package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/aegis-signal/internal/respcache"
)

// Macro series functions
const (
	FunctionFedFundsRate  = "FEDERAL_FUNDS_RATE"
	FunctionCPI           = "CPI"
	FunctionTreasuryYield = "TREASURY_YIELD"
	FunctionUnemployment  = "UNEMPLOYMENT"
)

// Economic fetches a monthly macro series, newest first
func (c *Client) Economic(ctx context.Context, function string) ([]EconomicPoint, error) {
	params := map[string]string{
		"function": function,
		"interval": "monthly",
	}
	if function == FunctionTreasuryYield {
		params["maturity"] = "10year"
	}

	body, err := c.Query(ctx, respcache.CategoryMacro, params)
	if err != nil {
		return nil, err
	}
	return parseEconomic(body)
}

func parseEconomic(body []byte) ([]EconomicPoint, error) {
	var resp struct {
		Name string `json:"name"`
		Data []struct {
			Date  string `json:"date"`
			Value string `json:"value"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode economic series: %w", err)
	}

	points := make([]EconomicPoint, 0, len(resp.Data))
	for _, row := range resp.Data {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			continue
		}
		v, ok := parseNumber(row.Value)
		if !ok {
			continue
		}
		points = append(points, EconomicPoint{Date: date, Value: v})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("economic series %q: %w", resp.Name, ErrNoData)
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.After(points[j].Date) })
	return points, nil
}
