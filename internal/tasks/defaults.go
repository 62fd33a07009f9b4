package tasks

import (
	"context"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/internal/external/alphavantage"
	"github.com/wonny/aegis-signal/internal/external/newsfeed"
	"github.com/wonny/aegis-signal/pkg/logger"
)

// Task names
const (
	NameMarket       = "market"
	NameFundamentals = "fundamentals"
	NameTechnical    = "technical"
	NameMacro        = "macro"
	NameNews         = "news"
	NameSentiment    = "sentiment"
)

// Data sources reported in TaskData
const (
	SourceUpstream = "alphavantage"
	SourceDerived  = "derived"
)

// Upstream is the market data surface used by tasks
type Upstream interface {
	GlobalQuote(ctx context.Context, symbol string) (*alphavantage.Quote, error)
	DailySeries(ctx context.Context, symbol string) ([]alphavantage.Bar, error)
	Overview(ctx context.Context, symbol string) (*alphavantage.Overview, error)
	NewsSentiment(ctx context.Context, symbol string, limit int) ([]alphavantage.Article, error)
	Economic(ctx context.Context, function string) ([]alphavantage.EconomicPoint, error)
}

// HeadlineSource is the quota-free news fallback
type HeadlineSource interface {
	Headlines(ctx context.Context, symbol string) ([]newsfeed.Headline, error)
}

// Deps are shared by every task instance
type Deps struct {
	Upstream  Upstream
	Headlines HeadlineSource // optional
	NewsLimit int
	Logger    *logger.Logger
}

// DefaultSpecs declares the built-in tasks in execution order
func DefaultSpecs(d Deps) []Spec {
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	d.Logger = d.Logger.WithComponent("tasks")

	return []Spec{
		{Name: NameMarket, Enabled: true, New: func(symbol string) contracts.Task {
			return &marketTask{deps: d, symbol: symbol}
		}},
		{Name: NameFundamentals, Enabled: true, New: func(symbol string) contracts.Task {
			return &fundamentalsTask{deps: d, symbol: symbol}
		}},
		{Name: NameTechnical, Enabled: true, New: func(symbol string) contracts.Task {
			return &technicalTask{deps: d, symbol: symbol}
		}},
		{Name: NameMacro, Enabled: true, New: func(symbol string) contracts.Task {
			return &macroTask{deps: d}
		}},
		{Name: NameNews, Enabled: true, New: func(symbol string) contracts.Task {
			return &newsTask{deps: d, symbol: symbol}
		}},
		{Name: NameSentiment, Enabled: true, Requires: []string{NameNews, NameMarket}, New: func(symbol string) contracts.Task {
			return &sentimentTask{symbol: symbol}
		}},
	}
}

// NewDefaultRegistry builds the registry of built-in tasks
func NewDefaultRegistry(d Deps) (*Registry, error) {
	return NewRegistry(DefaultSpecs(d)...)
}

// directionFrom maps a score onto bullish/neutral/bearish with a symmetric band
func directionFrom(score, band float64) string {
	switch {
	case score >= band:
		return contracts.DirectionBullish
	case score <= -band:
		return contracts.DirectionBearish
	default:
		return contracts.DirectionNeutral
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
