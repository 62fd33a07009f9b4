package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/internal/external/alphavantage"
)

// Indicator windows
const (
	smaShort     = 20
	smaLong      = 50
	rsiPeriod    = 14
	volWindow    = 20
	momentumDays = 20
	tradingDays  = 252
	minTechBars  = smaShort + 1
	strengthBand = 20.0
)

// ErrInsufficientHistory is returned when the series is too short for indicators
var ErrInsufficientHistory = errors.New("insufficient price history")

type technicalTask struct {
	deps   Deps
	symbol string
}

func (t *technicalTask) Name() string { return NameTechnical }

func (t *technicalTask) Fetch(ctx context.Context, _ contracts.TaskInput) (interface{}, error) {
	bars, err := t.deps.Upstream.DailySeries(ctx, t.symbol)
	if err != nil {
		return nil, fmt.Errorf("daily series: %w", err)
	}
	return bars, nil
}

func (t *technicalTask) Analyze(_ context.Context, raw interface{}) (contracts.TaskData, error) {
	bars, ok := raw.([]alphavantage.Bar)
	if !ok {
		return nil, errors.New("unexpected technical payload")
	}
	if len(bars) < minTechBars {
		return nil, fmt.Errorf("%w: %d bars, need %d", ErrInsufficientHistory, len(bars), minTechBars)
	}

	closes := make(stats.Float64Data, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	last := closes[len(closes)-1]

	sma20, err := stats.Mean(closes[len(closes)-smaShort:])
	if err != nil {
		return nil, fmt.Errorf("sma20: %w", err)
	}

	data := contracts.TaskData{
		"close": last,
		"sma20": sma20,
		"rsi14": rsi(closes, rsiPeriod),

		contracts.KeySource:       SourceUpstream,
		contracts.KeyFallbackUsed: false,
	}

	var sma50 *float64
	if len(closes) >= smaLong {
		v, err := stats.Mean(closes[len(closes)-smaLong:])
		if err == nil {
			sma50 = &v
			data["sma50"] = v
		}
	}

	if vol, err := annualizedVolatility(closes, volWindow); err == nil {
		data["volatility_20d"] = vol
	}

	momentum := 0.0
	if base := closes[len(closes)-1-momentumDays]; base > 0 {
		momentum = (last/base - 1) * 100
	}
	data["momentum_20d_pct"] = momentum

	strength := technicalStrength(last, sma20, sma50, data["rsi14"].(float64), momentum)
	data["technical_strength"] = strength
	data[contracts.KeyDirection] = directionFrom(strength, strengthBand)

	return data, nil
}

// rsi is Wilder's relative strength index over period
func rsi(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 50
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		diff := closes[i] - closes[i-1]
		if diff > 0 {
			gain += diff
		} else {
			loss -= diff
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)

	for i := period + 1; i < len(closes); i++ {
		diff := closes[i] - closes[i-1]
		up, down := 0.0, 0.0
		if diff > 0 {
			up = diff
		} else {
			down = -diff
		}
		avgGain = (avgGain*float64(period-1) + up) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + down) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// annualizedVolatility is the sample stdev of daily returns over the window, in percent
func annualizedVolatility(closes []float64, window int) (float64, error) {
	if len(closes) < window+1 {
		return 0, ErrInsufficientHistory
	}
	tail := closes[len(closes)-window-1:]
	returns := make(stats.Float64Data, 0, window)
	for i := 1; i < len(tail); i++ {
		if tail[i-1] == 0 {
			continue
		}
		returns = append(returns, tail[i]/tail[i-1]-1)
	}
	sd, err := stats.StandardDeviationSample(returns)
	if err != nil {
		return 0, err
	}
	return sd * math.Sqrt(tradingDays) * 100, nil
}

// technicalStrength combines trend, RSI and momentum into -100..100
func technicalStrength(price, sma20 float64, sma50 *float64, rsiValue, momentum float64) float64 {
	score := 0.0

	if price > sma20 {
		score += 25
	} else {
		score -= 25
	}

	if sma50 != nil {
		if sma20 > *sma50 {
			score += 25
		} else {
			score -= 25
		}
	}

	switch {
	case rsiValue > 70:
		score -= 15 // 과매수
	case rsiValue < 30:
		score += 15 // 과매도
	case rsiValue >= 50:
		score += 10
	default:
		score -= 10
	}

	score += clamp(momentum*2, -25, 25)

	return clamp(score, -100, 100)
}
