package contracts

import "time"

// Signal contract tags
const (
	SignalSchema         = "signal_contract"
	SignalSchemaVersion  = "v1"
	InstrumentTypeEquity = "equity"
)

// Evidence directions
const (
	DirectionBullish = "bullish"
	DirectionNeutral = "neutral"
	DirectionBearish = "bearish"
)

// Regime labels
const (
	RegimeRiskOn     = "risk_on"
	RegimeRiskOff    = "risk_off"
	RegimeTransition = "transition"
)

// SignalContract is the normalized decision record of one analysis run.
// Nil numeric fields mean the input needed to derive them was missing.
// ⭐ SSOT: 분석 결과의 유일한 외부 계약
type SignalContract struct {
	Schema         string    `json:"schema" validate:"eq=signal_contract"`
	Version        string    `json:"version" validate:"eq=v1"`
	InstrumentType string    `json:"instrument_type" validate:"eq=equity"`
	Symbol         string    `json:"symbol" validate:"required"`
	RunID          string    `json:"run_id"`
	GeneratedAt    time.Time `json:"generated_at"`

	Recommendation string `json:"recommendation" validate:"oneof=BUY HOLD SELL"`

	Scenarios      ScenarioBlock `json:"scenarios"`
	ExpectedReturn HorizonValues `json:"expected_return_pct"`
	DownsideRisk   HorizonValues `json:"downside_risk_pct"`
	HitRate        HitRates      `json:"hit_rate"`
	EVScore7D      *float64      `json:"ev_score_7d"`

	Confidence    ConfidenceBlock `json:"confidence"`
	Risk          RiskBlock       `json:"risk"`
	Liquidity     LiquidityBlock  `json:"liquidity"`
	ExecutionPlan ExecutionPlan   `json:"execution_plan"`

	Rationale string     `json:"rationale" validate:"max=600"`
	Evidence  []Evidence `json:"evidence" validate:"dive"`
}

// HorizonValues holds a percentage per horizon
type HorizonValues struct {
	D1  *float64 `json:"1d"`
	D7  *float64 `json:"7d"`
	D30 *float64 `json:"30d"`
}

// HitRates holds a probability per horizon
type HitRates struct {
	D1  *float64 `json:"1d" validate:"omitempty,gte=0,lte=1"`
	D7  *float64 `json:"7d" validate:"omitempty,gte=0,lte=1"`
	D30 *float64 `json:"30d" validate:"omitempty,gte=0,lte=1"`
}

// ScenarioBlock is the renormalized bull/base/bear view
type ScenarioBlock struct {
	BullProbability *float64 `json:"bull_probability" validate:"omitempty,gte=0,lte=1"`
	BaseProbability *float64 `json:"base_probability" validate:"omitempty,gte=0,lte=1"`
	BearProbability *float64 `json:"bear_probability" validate:"omitempty,gte=0,lte=1"`
	BullReturnPct   *float64 `json:"bull_return_pct"`
	BaseReturnPct   *float64 `json:"base_return_pct"`
	BearReturnPct   *float64 `json:"bear_return_pct"`
}

// ConfidenceBlock carries raw and calibrated confidence.
// UncertaintyBand is in percentage points.
type ConfidenceBlock struct {
	Raw             *float64 `json:"raw" validate:"omitempty,gte=0,lte=1"`
	Calibrated      *float64 `json:"calibrated" validate:"omitempty,gte=0,lte=1"`
	UncertaintyBand *float64 `json:"uncertainty_band" validate:"omitempty,gte=0,lte=100"`
	SampleSize      int      `json:"sample_size" validate:"gte=0"`
}

// RiskBlock groups risk metrics
type RiskBlock struct {
	RiskRewardRatio7D      *float64 `json:"risk_reward_ratio_7d"`
	MaxDrawdownEstimatePct *float64 `json:"max_drawdown_estimate_pct" validate:"omitempty,gte=0,lte=100"`
	DataQualityScore       *float64 `json:"data_quality_score" validate:"omitempty,gte=0,lte=100"`
	ConflictScore          *float64 `json:"conflict_score" validate:"omitempty,gte=0,lte=100"`
	Regime                 string   `json:"regime" validate:"oneof=risk_on risk_off transition"`
}

// LiquidityBlock describes tradability of the instrument
type LiquidityBlock struct {
	AvgDailyVolume  *float64 `json:"avg_daily_volume" validate:"omitempty,gte=0"`
	AvgDollarVolume *float64 `json:"avg_dollar_volume" validate:"omitempty,gte=0"`
	Tier            string   `json:"tier,omitempty" validate:"omitempty,oneof=high medium low"`
}

// ExecutionPlan is the actionable part of the decision
type ExecutionPlan struct {
	EntryZone              []float64 `json:"entry_zone"`
	StopLoss               *float64  `json:"stop_loss"`
	Targets                []float64 `json:"targets"`
	InvalidationConditions []string  `json:"invalidation_conditions"`
	MaxHoldingHorizon      string    `json:"max_holding_horizon"`
}

// Evidence is one contributing task's vote
type Evidence struct {
	Task           string   `json:"task" validate:"required"`
	Direction      string   `json:"direction" validate:"oneof=bullish neutral bearish"`
	Strength       float64  `json:"strength" validate:"gte=0,lte=1"`
	FreshnessHours *float64 `json:"freshness_hours"`
	Source         string   `json:"source"`
}

// NormalizeDirection maps any value outside bullish/neutral/bearish to neutral
func NormalizeDirection(s string) string {
	switch s {
	case DirectionBullish, DirectionBearish, DirectionNeutral:
		return s
	default:
		return DirectionNeutral
	}
}
