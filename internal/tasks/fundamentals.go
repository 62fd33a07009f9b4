package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/internal/external/alphavantage"
)

type fundamentalsTask struct {
	deps   Deps
	symbol string
}

func (t *fundamentalsTask) Name() string { return NameFundamentals }

func (t *fundamentalsTask) Fetch(ctx context.Context, _ contracts.TaskInput) (interface{}, error) {
	o, err := t.deps.Upstream.Overview(ctx, t.symbol)
	if err != nil {
		return nil, fmt.Errorf("overview: %w", err)
	}
	return o, nil
}

func (t *fundamentalsTask) Analyze(_ context.Context, raw interface{}) (contracts.TaskData, error) {
	o, ok := raw.(*alphavantage.Overview)
	if !ok || o == nil {
		return nil, errors.New("unexpected fundamentals payload")
	}

	score := healthScore(o)
	data := contracts.TaskData{
		"name":         o.Name,
		"sector":       o.Sector,
		"health_score": score,

		contracts.KeyDirection:    healthDirection(score),
		contracts.KeySource:       SourceUpstream,
		contracts.KeyFallbackUsed: false,
	}

	for key, v := range map[string]*float64{
		"market_cap":           o.MarketCap,
		"pe_ratio":             o.PERatio,
		"peg_ratio":            o.PEGRatio,
		"eps":                  o.EPS,
		"profit_margin":        o.ProfitMargin,
		"operating_margin":     o.OperatingMargin,
		"return_on_equity":     o.ReturnOnEquity,
		"debt_to_equity":       o.DebtToEquity,
		"revenue_growth_yoy":   o.RevenueGrowthYOY,
		"earnings_growth_yoy":  o.EarningsGrowthYOY,
		"analyst_target_price": o.AnalystTargetPrice,
		"beta":                 o.Beta,
	} {
		if v != nil {
			data[key] = *v
		}
	}

	return data, nil
}

// healthScore rates profitability, valuation, growth and leverage on 0-100 (50 = neutral)
func healthScore(o *alphavantage.Overview) float64 {
	score := 50.0

	if m := o.ProfitMargin; m != nil {
		switch {
		case *m > 0.15:
			score += 10
		case *m < 0:
			score -= 15
		}
	}
	if roe := o.ReturnOnEquity; roe != nil {
		switch {
		case *roe > 0.15:
			score += 10
		case *roe < 0:
			score -= 10
		}
	}
	if pe := o.PERatio; pe != nil && *pe > 0 {
		switch {
		case *pe < 25:
			score += 10
		case *pe > 40:
			score -= 10
		}
	} else {
		// 적자 또는 PER 없음
		score -= 5
	}
	if g := o.RevenueGrowthYOY; g != nil {
		switch {
		case *g > 0.05:
			score += 10
		case *g < 0:
			score -= 10
		}
	}
	if g := o.EarningsGrowthYOY; g != nil {
		switch {
		case *g > 0.10:
			score += 5
		case *g < 0:
			score -= 5
		}
	}
	if de := o.DebtToEquity; de != nil && *de > 2 {
		score -= 10
	}

	return clamp(score, 0, 100)
}

func healthDirection(score float64) string {
	switch {
	case score >= 65:
		return contracts.DirectionBullish
	case score <= 35:
		return contracts.DirectionBearish
	default:
		return contracts.DirectionNeutral
	}
}
