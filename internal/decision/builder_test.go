package decision

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signal/internal/contracts"
)

var asOf = time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func baseAnalysis() *contracts.SynthesisOutput {
	return &contracts.SynthesisOutput{
		Recommendation: "buy",
		Confidence:     f(0.7),
		Scenarios: contracts.Scenarios{
			Bull: &contracts.Scenario{Probability: 0.4, ExpectedReturnPct: 14.0},
			Base: &contracts.Scenario{Probability: 0.4, ExpectedReturnPct: 4.0},
			Bear: &contracts.Scenario{Probability: 0.2, ExpectedReturnPct: -10.0},
		},
		DecisionCard: contracts.DecisionCard{
			EntryZone:              []float64{99, 101},
			StopLoss:               f(92),
			Targets:                []float64{108.456, 115},
			InvalidationConditions: []string{"close below 92"},
			TimeHorizon:            "7d",
		},
		RationaleSummary: "Momentum and earnings revisions align.",
	}
}

func baseResults() map[string]*contracts.TaskResult {
	return map[string]*contracts.TaskResult{
		"market": contracts.NewTaskSuccess("market", contracts.TaskData{
			"direction":             "bullish",
			"change_pct":            2.5,
			"avg_volume_20d":        1_200_000.0,
			"avg_dollar_volume_20d": 120_000_000.0,
			"source":                "alphavantage",
		}, time.Second, asOf.Add(-2*time.Hour)),
		"technical": contracts.NewTaskSuccess("technical", contracts.TaskData{
			"direction":          "bullish",
			"technical_strength": 60.0,
		}, time.Second, asOf),
		"macro": contracts.NewTaskSuccess("macro", contracts.TaskData{
			"direction":    "neutral",
			"macro_signal": "risk_on",
		}, time.Second, asOf),
	}
}

func fullQuality() contracts.Diagnostics {
	return contracts.Diagnostics{
		DataQuality: contracts.DataQuality{
			AgentSuccessRate:     1,
			NewsFreshnessHours:   f(0),
			FallbackSourceAgents: []string{},
			SuccessfulAgents:     3,
		},
		Disagreement: contracts.Disagreement{BullishCount: 2},
	}
}

func calibrated7d(rate float64, n int) map[contracts.Horizon]contracts.CalibrationStat {
	return map[contracts.Horizon]contracts.CalibrationStat{
		contracts.Horizon7D: {HitRate: rate, SampleSize: n},
	}
}

func TestBuild_ReferenceScenario(t *testing.T) {
	c := Build(Input{
		Symbol:      "aapl",
		RunID:       "run_1",
		Analysis:    baseAnalysis(),
		Results:     baseResults(),
		Diagnostics: fullQuality(),
		HitRates:    calibrated7d(0.58, 40),
		AsOf:        asOf,
	})

	require.NotNil(t, c.ExpectedReturn.D7)
	require.NotNil(t, c.DownsideRisk.D7)
	require.NotNil(t, c.HitRate.D7)
	require.NotNil(t, c.EVScore7D)
	require.NotNil(t, c.Risk.RiskRewardRatio7D)

	assert.Equal(t, "AAPL", c.Symbol)
	assert.Equal(t, "BUY", c.Recommendation)
	assert.InDelta(t, 5.2, *c.ExpectedReturn.D7, 1e-9)
	assert.InDelta(t, 8.0, *c.DownsideRisk.D7, 1e-9)
	assert.InDelta(t, 0.58, *c.HitRate.D7, 1e-9)
	assert.InDelta(t, 0.65, *c.Risk.RiskRewardRatio7D, 1e-9)

	// EV identity on the published values: 5.2*0.58 - 8*0.42
	assert.InDelta(t, -0.344, *c.EVScore7D, 1e-9)

	assert.InDelta(t, 0.74, *c.ExpectedReturn.D1, 1e-9)
	assert.InDelta(t, 22.29, *c.ExpectedReturn.D30, 1e-9)
	assert.InDelta(t, 1.14, *c.DownsideRisk.D1, 1e-9)
	assert.InDelta(t, 34.29, *c.DownsideRisk.D30, 1e-9)

	// Calibration backs 7d only; other horizons inherit it
	assert.InDelta(t, 0.58, *c.HitRate.D1, 1e-9)
	assert.InDelta(t, 0.58, *c.HitRate.D30, 1e-9)
	assert.InDelta(t, 0.58, *c.Confidence.Calibrated, 1e-9)
	assert.InDelta(t, 0.7, *c.Confidence.Raw, 1e-9)
	assert.Equal(t, 12.0, *c.Confidence.UncertaintyBand)
	assert.Equal(t, 40, c.Confidence.SampleSize)

	assert.InDelta(t, 34.29, *c.Risk.MaxDrawdownEstimatePct, 1e-9)
	assert.Equal(t, 100.0, *c.Risk.DataQualityScore)
	assert.Equal(t, 0.0, *c.Risk.ConflictScore)
	assert.Equal(t, contracts.RegimeRiskOn, c.Risk.Regime)

	assert.Equal(t, "high", c.Liquidity.Tier)
	assert.Equal(t, []float64{108.46, 115}, c.ExecutionPlan.Targets)
	assert.Equal(t, "7d", c.ExecutionPlan.MaxHoldingHorizon)

	assert.True(t, Validate(c).Valid, Validate(c).Messages())
}

func TestBuild_ProbabilitiesRenormalized(t *testing.T) {
	tests := []struct {
		name      string
		scenarios contracts.Scenarios
	}{
		{
			name: "oversubscribed",
			scenarios: contracts.Scenarios{
				Bull: &contracts.Scenario{Probability: 0.9, ExpectedReturnPct: 10},
				Base: &contracts.Scenario{Probability: 0.9, ExpectedReturnPct: 1},
				Bear: &contracts.Scenario{Probability: 0.9, ExpectedReturnPct: -5},
			},
		},
		{
			name: "out of range weights",
			scenarios: contracts.Scenarios{
				Bull: &contracts.Scenario{Probability: 3, ExpectedReturnPct: 10},
				Base: &contracts.Scenario{Probability: -1, ExpectedReturnPct: 1},
				Bear: &contracts.Scenario{Probability: 0.5, ExpectedReturnPct: -5},
			},
		},
		{
			name: "missing base",
			scenarios: contracts.Scenarios{
				Bull: &contracts.Scenario{Probability: 0.2, ExpectedReturnPct: 10},
				Bear: &contracts.Scenario{Probability: 0.1, ExpectedReturnPct: -5},
			},
		},
		{
			name: "thirds",
			scenarios: contracts.Scenarios{
				Bull: &contracts.Scenario{Probability: 1, ExpectedReturnPct: 10},
				Base: &contracts.Scenario{Probability: 1, ExpectedReturnPct: 1},
				Bear: &contracts.Scenario{Probability: 1, ExpectedReturnPct: -5},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := baseAnalysis()
			a.Scenarios = tt.scenarios
			c := Build(Input{Symbol: "MSFT", Analysis: a, Results: baseResults(), Diagnostics: fullQuality(), AsOf: asOf})

			sum, n := probabilitySum(c.Scenarios)
			require.Greater(t, n, 0)
			assert.InDelta(t, 1.0, sum, probabilityTolerance)
			assert.True(t, Validate(c).Valid, Validate(c).Messages())
		})
	}
}

func TestBuild_EVIdentity(t *testing.T) {
	for _, conf := range []float64{0, 0.25, 0.5, 0.8, 1} {
		a := baseAnalysis()
		a.Confidence = f(conf)
		c := Build(Input{Symbol: "NVDA", Analysis: a, Results: baseResults(), Diagnostics: fullQuality(), AsOf: asOf})

		require.NotNil(t, c.EVScore7D)
		er, dr, hr := *c.ExpectedReturn.D7, *c.DownsideRisk.D7, *c.HitRate.D7
		assert.InDelta(t, er*hr-dr*(1-hr), *c.EVScore7D, 0.001)
	}
}

func TestHeuristicHitRate(t *testing.T) {
	tests := []struct {
		rec  string
		conf float64
		want float64
	}{
		{"BUY", 0, 0.45},
		{"BUY", 1, 0.90},
		{"SELL", 0.5, 0.675},
		{"HOLD", 0, 0.40},
		{"HOLD", 1, 0.65},
		{"MAYBE", 1, 0.65},
	}
	for _, tt := range tests {
		t.Run(tt.rec, func(t *testing.T) {
			assert.InDelta(t, tt.want, heuristicHitRate(tt.rec, tt.conf), 1e-9)
		})
	}
}

func TestBuild_ThinCalibrationUsesHeuristic(t *testing.T) {
	c := Build(Input{
		Symbol:      "AAPL",
		Analysis:    baseAnalysis(),
		Results:     baseResults(),
		Diagnostics: fullQuality(),
		HitRates:    calibrated7d(0.99, 29),
		AsOf:        asOf,
	})

	assert.InDelta(t, 0.765, *c.HitRate.D7, 1e-9)
	assert.Equal(t, *c.Confidence.Raw, *c.Confidence.Calibrated)
	assert.Equal(t, defaultUncertaintyBand, *c.Confidence.UncertaintyBand)
}

func TestBuild_MissingInputsDegradeToNil(t *testing.T) {
	c := Build(Input{
		Symbol:   "AAPL",
		Analysis: &contracts.SynthesisOutput{Recommendation: "HOLD"},
		AsOf:     asOf,
	})

	assert.Nil(t, c.ExpectedReturn.D7)
	assert.Nil(t, c.DownsideRisk.D7)
	assert.Nil(t, c.HitRate.D7)
	assert.Nil(t, c.EVScore7D)
	assert.Nil(t, c.Risk.RiskRewardRatio7D)
	assert.Nil(t, c.Risk.MaxDrawdownEstimatePct)
	assert.Nil(t, c.Liquidity.AvgDollarVolume)
	assert.Equal(t, contracts.RegimeRiskOff, c.Risk.Regime)
	assert.NotNil(t, c.Evidence)
	assert.Empty(t, c.Evidence)

	assert.True(t, Validate(c).Valid, Validate(c).Messages())
}

func TestDataQualityScore(t *testing.T) {
	tests := []struct {
		name string
		q    contracts.DataQuality
		want float64
	}{
		{"perfect", contracts.DataQuality{AgentSuccessRate: 1, NewsFreshnessHours: f(0), SuccessfulAgents: 4}, 100},
		{"stale news", contracts.DataQuality{AgentSuccessRate: 1, NewsFreshnessHours: f(60), SuccessfulAgents: 4}, 70},
		{"no news", contracts.DataQuality{AgentSuccessRate: 1, SuccessfulAgents: 4}, 70},
		{"half fallback", contracts.DataQuality{AgentSuccessRate: 0.5, NewsFreshnessHours: f(24), SuccessfulAgents: 2, FallbackSourceAgents: []string{"news"}}, 50},
		{"nothing", contracts.DataQuality{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, dataQualityScore(tt.q), 1e-9)
		})
	}
}

func TestRegime(t *testing.T) {
	macro := func(signal string) *contracts.TaskResult {
		return contracts.NewTaskSuccess("macro", contracts.TaskData{"macro_signal": signal}, 0, asOf)
	}
	tests := []struct {
		name    string
		quality float64
		macro   *contracts.TaskResult
		want    string
	}{
		{"poor quality", 40, macro("risk_on"), contracts.RegimeRiskOff},
		{"good risk on", 80, macro("risk_on"), contracts.RegimeRiskOn},
		{"fair risk on", 60, macro("bullish"), contracts.RegimeTransition},
		{"risk off", 90, macro("bearish"), contracts.RegimeRiskOff},
		{"no macro", 90, nil, contracts.RegimeTransition},
		{"failed macro", 90, contracts.NewTaskFailure("macro", nil, 0, asOf), contracts.RegimeTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, regime(tt.quality, tt.macro))
		})
	}
}

func TestConflictScore(t *testing.T) {
	assert.Equal(t, 0.0, conflictScore(contracts.Disagreement{BullishCount: 4}))
	assert.Equal(t, 50.0, conflictScore(contracts.Disagreement{BullishCount: 2, BearishCount: 2}))
	assert.InDelta(t, 33.333, conflictScore(contracts.Disagreement{BullishCount: 2, BearishCount: 1}), 0.001)
	assert.Equal(t, 0.0, conflictScore(contracts.Disagreement{}))
}

func TestLiquidityTiers(t *testing.T) {
	tests := []struct {
		dollarVolume float64
		want         string
	}{
		{50_000_000, "high"},
		{49_999_999, "medium"},
		{5_000_000, "medium"},
		{10, "low"},
	}
	for _, tt := range tests {
		res := contracts.NewTaskSuccess("market", contracts.TaskData{"avg_dollar_volume_20d": tt.dollarVolume}, 0, asOf)
		assert.Equal(t, tt.want, liquidity(res).Tier)
	}
}

func TestBoundRationale(t *testing.T) {
	long := strings.Repeat("가", MaxRationaleRunes+50)
	got := boundRationale(long)
	assert.Equal(t, MaxRationaleRunes, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "..."))

	assert.Equal(t, "short", boundRationale("  short  "))
}

func TestEvidence(t *testing.T) {
	results := baseResults()
	results["news"] = contracts.NewTaskSuccess("news", contracts.TaskData{
		"direction":     "BEARISH",
		"avg_sentiment": -0.4,
		"fallback_used": true,
		"source":        "html_fallback",
	}, 0, asOf)
	results["fundamentals"] = contracts.NewTaskFailure("fundamentals", nil, 0, asOf)

	diag := fullQuality()
	diag.DataQuality.NewsFreshnessHours = f(5.5)

	rows := evidence(results, diag, asOf)
	require.Len(t, rows, 4)

	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Task)
	}
	assert.Equal(t, []string{"macro", "market", "news", "technical"}, names)

	news := rows[2]
	assert.Equal(t, contracts.DirectionBearish, news.Direction)
	assert.InDelta(t, 0.4, news.Strength, 1e-9)
	assert.Equal(t, 5.5, *news.FreshnessHours)
	assert.Equal(t, "html_fallback", news.Source)

	market := rows[1]
	assert.InDelta(t, 0.5, market.Strength, 1e-9)
	assert.Equal(t, 2.0, *market.FreshnessHours)

	assert.Equal(t, "unknown", rows[3].Source)
}
