package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/internal/external/alphavantage"
)

// liquidityWindow is the number of sessions averaged for liquidity
const liquidityWindow = 20

type marketTask struct {
	deps   Deps
	symbol string
}

type marketRaw struct {
	quote *alphavantage.Quote
	bars  []alphavantage.Bar
}

func (t *marketTask) Name() string { return NameMarket }

// Fetch reads the latest quote; the daily series only feeds liquidity and may fail
func (t *marketTask) Fetch(ctx context.Context, _ contracts.TaskInput) (interface{}, error) {
	quote, err := t.deps.Upstream.GlobalQuote(ctx, t.symbol)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}

	bars, err := t.deps.Upstream.DailySeries(ctx, t.symbol)
	if err != nil {
		t.deps.Logger.WithError(err).WithField("symbol", t.symbol).Warn("Daily series unavailable; liquidity omitted")
	}

	return &marketRaw{quote: quote, bars: bars}, nil
}

func (t *marketTask) Analyze(_ context.Context, raw interface{}) (contracts.TaskData, error) {
	r, ok := raw.(*marketRaw)
	if !ok || r.quote == nil {
		return nil, errors.New("unexpected market payload")
	}
	q := r.quote

	data := contracts.TaskData{
		"price":          q.Price,
		"change":         q.Change,
		"change_pct":     q.ChangePercent,
		"volume":         q.Volume,
		"previous_close": q.PreviousClose,
		"day_high":       q.High,
		"day_low":        q.Low,

		contracts.KeyDirection:    directionFrom(q.ChangePercent, 0.5),
		contracts.KeySource:       SourceUpstream,
		contracts.KeyFallbackUsed: false,
	}
	if !q.LatestDay.IsZero() {
		data["trading_day"] = q.LatestDay.Format("2006-01-02")
	}

	if avgVolume, avgDollar, ok := liquidityAverages(r.bars, liquidityWindow); ok {
		data["avg_volume_20d"] = avgVolume
		data["avg_dollar_volume_20d"] = avgDollar
	}

	return data, nil
}

// liquidityAverages averages volume and close*volume over the last n bars
func liquidityAverages(bars []alphavantage.Bar, n int) (avgVolume, avgDollar float64, ok bool) {
	if len(bars) == 0 {
		return 0, 0, false
	}
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	for _, b := range bars {
		avgVolume += b.Volume
		avgDollar += b.Close * b.Volume
	}
	count := float64(len(bars))
	return avgVolume / count, avgDollar / count, true
}
