package alphavantage

import (
	"strconv"
	"strings"
	"time"
)

// Quote represents the latest quote of a symbol
type Quote struct {
	Symbol        string
	Open          float64
	High          float64
	Low           float64
	Price         float64
	Volume        float64
	LatestDay     time.Time
	PreviousClose float64
	Change        float64
	ChangePercent float64
}

// Bar represents one daily OHLCV row
type Bar struct {
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Overview holds company fundamentals; nil means "None" upstream
type Overview struct {
	Symbol             string
	Name               string
	Sector             string
	MarketCap          *float64
	PERatio            *float64
	PEGRatio           *float64
	EPS                *float64
	ProfitMargin       *float64
	OperatingMargin    *float64
	ReturnOnEquity     *float64
	DebtToEquity       *float64
	RevenueGrowthYOY   *float64
	EarningsGrowthYOY  *float64
	AnalystTargetPrice *float64
	Beta               *float64
}

// Article is one news item with its sentiment
type Article struct {
	Title          string
	URL            string
	Source         string
	Summary        string
	PublishedAt    time.Time
	SentimentScore *float64 // overall, [-1, 1]
	TickerScore    *float64 // for the requested symbol
	Relevance      *float64
}

// EconomicPoint is one observation of a macro series
type EconomicPoint struct {
	Date  time.Time
	Value float64
}

// parseNumber parses an upstream numeric string; "None", "-" and "" are missing
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	switch s {
	case "", "None", "-", ".":
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseNumberPtr(s string) *float64 {
	v, ok := parseNumber(s)
	if !ok {
		return nil
	}
	return &v
}

func parseNumberOrZero(s string) float64 {
	v, _ := parseNumber(s)
	return v
}
