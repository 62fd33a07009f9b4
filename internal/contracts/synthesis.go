package contracts

// Recommendation values
const (
	RecommendationBuy  = "BUY"
	RecommendationHold = "HOLD"
	RecommendationSell = "SELL"
)

// Scenario is one of the bull/base/bear outcomes declared by synthesis
type Scenario struct {
	Probability       float64 `json:"probability"`
	ExpectedReturnPct float64 `json:"expected_return_pct"`
	Thesis            string  `json:"thesis"`
}

// Scenarios groups the three outcomes; any may be missing
type Scenarios struct {
	Bull *Scenario `json:"bull,omitempty"`
	Base *Scenario `json:"base,omitempty"`
	Bear *Scenario `json:"bear,omitempty"`
}

// DecisionCard carries the trade levels proposed by synthesis.
// EntryZone is [low, high] (or a single price).
type DecisionCard struct {
	EntryZone              []float64 `json:"entry_zone"`
	StopLoss               *float64  `json:"stop_loss"`
	Targets                []float64 `json:"targets"`
	InvalidationConditions []string  `json:"invalidation_conditions"`
	TimeHorizon            string    `json:"time_horizon"`
}

// SynthesisOutput is what the external synthesis step returns
type SynthesisOutput struct {
	Recommendation   string       `json:"recommendation"`
	Confidence       *float64     `json:"confidence"`
	Scenarios        Scenarios    `json:"scenarios"`
	DecisionCard     DecisionCard `json:"decision_card"`
	RationaleSummary string       `json:"rationale_summary"`
}

// Diagnostics summarises a run's task results for the contract builder
type Diagnostics struct {
	DataQuality  DataQuality  `json:"data_quality"`
	Disagreement Disagreement `json:"disagreement"`
}

// DataQuality inputs to the data quality score
type DataQuality struct {
	AgentSuccessRate     float64  `json:"agent_success_rate"`
	NewsFreshnessHours   *float64 `json:"news_freshness_hours"`
	FallbackSourceAgents []string `json:"fallback_source_agents"`
	SuccessfulAgents     int      `json:"successful_agents"`
}

// Disagreement counts directional votes across tasks
type Disagreement struct {
	BullishCount    int               `json:"bullish_count"`
	BearishCount    int               `json:"bearish_count"`
	AgentDirections map[string]string `json:"agent_directions"`
}
