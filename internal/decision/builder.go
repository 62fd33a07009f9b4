package decision

import (
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/wonny/aegis-signal/internal/contracts"
)

// Builder constants
const (
	MaxRationaleRunes = 600

	horizonDays = 7.0 // scenario returns are stated over 7 days
	max30DPct   = 60.0
	rrFloor     = 0.1 // risk/reward denominator floor

	qualityGood = 70.0
	qualityFair = 50.0

	liquidityHigh   = 50_000_000.0
	liquidityMedium = 5_000_000.0

	defaultUncertaintyBand = 15.0
)

// Task names with specialised evidence strength
const (
	taskMarket       = "market"
	taskFundamentals = "fundamentals"
	taskTechnical    = "technical"
	taskMacro        = "macro"
	taskNews         = "news"
	taskSentiment    = "sentiment"
)

// Input is everything the builder needs from one run
type Input struct {
	Symbol      string
	RunID       string
	Analysis    *contracts.SynthesisOutput
	Results     map[string]*contracts.TaskResult
	Diagnostics contracts.Diagnostics
	HitRates    map[contracts.Horizon]contracts.CalibrationStat
	AsOf        time.Time
}

// Build derives the signal contract. It never fails: missing inputs leave
// the affected fields nil and the validator decides persistability.
func Build(in Input) *contracts.SignalContract {
	analysis := in.Analysis
	if analysis == nil {
		analysis = &contracts.SynthesisOutput{}
	}

	c := &contracts.SignalContract{
		Schema:         contracts.SignalSchema,
		Version:        contracts.SignalSchemaVersion,
		InstrumentType: contracts.InstrumentTypeEquity,
		Symbol:         strings.ToUpper(strings.TrimSpace(in.Symbol)),
		RunID:          in.RunID,
		GeneratedAt:    in.AsOf.UTC(),
		Recommendation: strings.ToUpper(strings.TrimSpace(analysis.Recommendation)),
	}

	// 1. 시나리오 정규화 + 기대수익
	scen := normalizeScenarios(analysis.Scenarios)
	c.Scenarios = scen.block()
	er7 := scen.expectedReturn()

	// 2. 하방 리스크
	dr7 := downsideRisk(scen, analysis.DecisionCard)

	c.ExpectedReturn = scaleHorizons(er7, -max30DPct, max30DPct)
	c.DownsideRisk = scaleHorizons(dr7, 0, max30DPct)

	// 3. 적중률 (calibration 우선)
	var conf *float64
	if analysis.Confidence != nil {
		conf = ptr(clamp(*analysis.Confidence, 0, 1))
	}
	c.HitRate = hitRates(c.Recommendation, conf, in.HitRates)

	// 4. EV / RR (published values)
	if c.ExpectedReturn.D7 != nil && c.DownsideRisk.D7 != nil && c.HitRate.D7 != nil {
		er, dr, hr := *c.ExpectedReturn.D7, *c.DownsideRisk.D7, *c.HitRate.D7
		c.EVScore7D = ptr(round(er*hr-dr*(1-hr), evPlaces))
	}
	if c.ExpectedReturn.D7 != nil && c.DownsideRisk.D7 != nil {
		rr := *c.ExpectedReturn.D7 / math.Max(*c.DownsideRisk.D7, rrFloor)
		c.Risk.RiskRewardRatio7D = ptr(round(rr, pctPlaces))
	}

	c.Confidence = confidence(conf, in.HitRates[contracts.Horizon7D])

	// 5. 품질 / 충돌 / 레짐
	quality := dataQualityScore(in.Diagnostics.DataQuality)
	c.Risk.DataQualityScore = ptr(round(quality, scorePlaces))
	c.Risk.ConflictScore = ptr(round(conflictScore(in.Diagnostics.Disagreement), scorePlaces))
	c.Risk.Regime = regime(quality, in.Results[taskMacro])
	c.Risk.MaxDrawdownEstimatePct = maxDrawdown(c.DownsideRisk.D30, scen.bearReturn)

	c.Liquidity = liquidity(in.Results[taskMarket])
	c.ExecutionPlan = executionPlan(analysis.DecisionCard)
	c.Rationale = boundRationale(analysis.RationaleSummary)
	c.Evidence = evidence(in.Results, in.Diagnostics, in.AsOf)

	return c
}

// scenarios holds renormalized probabilities; a missing scenario weighs zero
type scenarios struct {
	bullP, baseP, bearP *float64
	bullR, baseR, bearR *float64
	bearReturn          *float64
}

func normalizeScenarios(s contracts.Scenarios) scenarios {
	var out scenarios
	raw := []*contracts.Scenario{s.Bull, s.Base, s.Bear}

	sum := 0.0
	for _, sc := range raw {
		if sc != nil {
			sum += clamp(sc.Probability, 0, 1)
		}
	}

	norm := func(sc *contracts.Scenario) (*float64, *float64) {
		if sc == nil {
			return nil, nil
		}
		p := 0.0
		if sum > 0 {
			p = clamp(sc.Probability, 0, 1) / sum
		}
		return ptr(p), ptr(sc.ExpectedReturnPct)
	}

	out.bullP, out.bullR = norm(s.Bull)
	out.baseP, out.baseR = norm(s.Base)
	out.bearP, out.bearR = norm(s.Bear)
	if s.Bear != nil {
		out.bearReturn = ptr(s.Bear.ExpectedReturnPct)
	}
	if sum == 0 {
		// 확률 정보 없음: 기대수익 계산 불가
		out.bullP, out.baseP, out.bearP = nil, nil, nil
	}
	return out
}

func (s scenarios) expectedReturn() *float64 {
	if s.bullP == nil && s.baseP == nil && s.bearP == nil {
		return nil
	}
	er := 0.0
	for _, pair := range [][2]*float64{{s.bullP, s.bullR}, {s.baseP, s.baseR}, {s.bearP, s.bearR}} {
		if pair[0] != nil && pair[1] != nil {
			er += *pair[0] * *pair[1]
		}
	}
	return &er
}

func (s scenarios) block() contracts.ScenarioBlock {
	return contracts.ScenarioBlock{
		BullProbability: roundPtr(s.bullP, probPlaces),
		BaseProbability: roundPtr(s.baseP, probPlaces),
		BearProbability: roundPtr(s.bearP, probPlaces),
		BullReturnPct:   roundPtr(s.bullR, pctPlaces),
		BaseReturnPct:   roundPtr(s.baseR, pctPlaces),
		BearReturnPct:   roundPtr(s.bearR, pctPlaces),
	}
}

// downsideRisk is the larger of the probability-weighted bear loss and the
// distance from the entry reference to the stop-loss, both in percent
func downsideRisk(s scenarios, card contracts.DecisionCard) *float64 {
	var dr *float64
	consider := func(v float64) {
		if dr == nil || v > *dr {
			dr = ptr(v)
		}
	}

	if s.bearP != nil && s.bearR != nil && *s.bearR < 0 {
		consider(*s.bearP * math.Abs(*s.bearR))
	}

	if entry, ok := entryReference(card.EntryZone); ok && card.StopLoss != nil && *card.StopLoss > 0 {
		consider(math.Abs(entry-*card.StopLoss) / entry * 100)
	}

	return dr
}

// entryReference is the midpoint of the entry zone
func entryReference(zone []float64) (float64, bool) {
	var sum float64
	var n int
	for _, p := range zone {
		if p > 0 {
			sum += p
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// scaleHorizons derives 1d/30d values from a 7d value
func scaleHorizons(v7 *float64, lo30, hi30 float64) contracts.HorizonValues {
	if v7 == nil {
		return contracts.HorizonValues{}
	}
	return contracts.HorizonValues{
		D1:  ptr(round(*v7/horizonDays, pctPlaces)),
		D7:  ptr(round(*v7, pctPlaces)),
		D30: ptr(round(clamp(*v7*30/horizonDays, lo30, hi30), pctPlaces)),
	}
}

// heuristicHitRate maps confidence onto a hit rate when calibration is thin
func heuristicHitRate(recommendation string, conf float64) float64 {
	switch recommendation {
	case contracts.RecommendationBuy, contracts.RecommendationSell:
		return clamp(0.45+0.45*conf, 0.35, 0.90)
	default:
		return clamp(0.40+0.25*conf, 0.35, 0.70)
	}
}

func hitRates(recommendation string, conf *float64, calib map[contracts.Horizon]contracts.CalibrationStat) contracts.HitRates {
	var hr7 *float64
	if stat, ok := calib[contracts.Horizon7D]; ok && stat.SampleSize >= contracts.MinCalibrationSamples {
		hr7 = ptr(clamp(stat.HitRate, 0, 1))
	} else if conf != nil {
		hr7 = ptr(heuristicHitRate(recommendation, *conf))
	}

	pick := func(h contracts.Horizon) *float64 {
		if stat, ok := calib[h]; ok && stat.SampleSize >= contracts.MinCalibrationSamples {
			return ptr(clamp(stat.HitRate, 0, 1))
		}
		return hr7
	}

	return contracts.HitRates{
		D1:  roundPtr(pick(contracts.Horizon1D), probPlaces),
		D7:  roundPtr(hr7, probPlaces),
		D30: roundPtr(pick(contracts.Horizon30D), probPlaces),
	}
}

// uncertaintyBand narrows as calibration samples accumulate
func uncertaintyBand(samples int) float64 {
	switch {
	case samples >= 200:
		return 5
	case samples >= 100:
		return 8
	case samples >= contracts.MinCalibrationSamples:
		return 12
	default:
		return defaultUncertaintyBand
	}
}

func confidence(conf *float64, stat7 contracts.CalibrationStat) contracts.ConfidenceBlock {
	block := contracts.ConfidenceBlock{
		Raw:             roundPtr(conf, probPlaces),
		UncertaintyBand: ptr(uncertaintyBand(stat7.SampleSize)),
		SampleSize:      stat7.SampleSize,
	}
	if stat7.SampleSize >= contracts.MinCalibrationSamples {
		block.Calibrated = ptr(round(clamp(stat7.HitRate, 0, 1), probPlaces))
	} else {
		block.Calibrated = block.Raw
	}
	return block
}

// newsStaleHours is where news freshness reaches zero
const newsStaleHours = 48.0

// dataQualityScore = 100 * (0.5 success rate + 0.3 news freshness + 0.2 source quality)
func dataQualityScore(q contracts.DataQuality) float64 {
	success := clamp(q.AgentSuccessRate, 0, 1)

	freshness := 0.0
	if q.NewsFreshnessHours != nil {
		freshness = 1 - math.Min(*q.NewsFreshnessHours, newsStaleHours)/newsStaleHours
	}

	source := 0.0
	if q.SuccessfulAgents > 0 {
		source = 1 - float64(len(q.FallbackSourceAgents))/float64(q.SuccessfulAgents)
	}

	score := 100 * (0.5*success + 0.3*clamp(freshness, 0, 1) + 0.2*clamp(source, 0, 1))
	return clamp(score, 0, 100)
}

// conflictScore is 100 when bullish and bearish votes are balanced
func conflictScore(d contracts.Disagreement) float64 {
	b, s := float64(d.BullishCount), float64(d.BearishCount)
	return 100 * math.Min(1, math.Min(b, s)/math.Max(1, b+s))
}

func regime(quality float64, macro *contracts.TaskResult) string {
	if quality < qualityFair {
		return contracts.RegimeRiskOff
	}

	signal := ""
	if macro != nil && macro.Success {
		signal = macro.Data.String("macro_signal")
		if signal == "" {
			signal = macro.Data.String(contracts.KeyDirection)
		}
	}

	switch signal {
	case "risk_on", contracts.DirectionBullish:
		if quality < qualityGood {
			return contracts.RegimeTransition
		}
		return contracts.RegimeRiskOn
	case "risk_off", contracts.DirectionBearish:
		return contracts.RegimeRiskOff
	default:
		return contracts.RegimeTransition
	}
}

func maxDrawdown(dr30 *float64, bearReturn *float64) *float64 {
	var dd *float64
	if dr30 != nil {
		dd = ptr(*dr30)
	}
	if bearReturn != nil && *bearReturn < 0 {
		if loss := math.Abs(*bearReturn); dd == nil || loss > *dd {
			dd = ptr(loss)
		}
	}
	if dd == nil {
		return nil
	}
	return ptr(round(math.Min(*dd, 100), pctPlaces))
}

func liquidity(market *contracts.TaskResult) contracts.LiquidityBlock {
	var block contracts.LiquidityBlock
	if market == nil || !market.Success {
		return block
	}
	if v, ok := market.Data.Float("avg_volume_20d"); ok && v >= 0 {
		block.AvgDailyVolume = ptr(math.Round(v))
	}
	if v, ok := market.Data.Float("avg_dollar_volume_20d"); ok && v >= 0 {
		block.AvgDollarVolume = ptr(round(v, pctPlaces))
		switch {
		case v >= liquidityHigh:
			block.Tier = "high"
		case v >= liquidityMedium:
			block.Tier = "medium"
		default:
			block.Tier = "low"
		}
	}
	return block
}

func executionPlan(card contracts.DecisionCard) contracts.ExecutionPlan {
	plan := contracts.ExecutionPlan{
		EntryZone:              roundPrices(card.EntryZone),
		StopLoss:               roundPtr(card.StopLoss, pctPlaces),
		Targets:                roundPrices(card.Targets),
		InvalidationConditions: card.InvalidationConditions,
		MaxHoldingHorizon:      strings.TrimSpace(card.TimeHorizon),
	}
	if plan.InvalidationConditions == nil {
		plan.InvalidationConditions = []string{}
	}
	return plan
}

func roundPrices(prices []float64) []float64 {
	out := make([]float64, 0, len(prices))
	for _, p := range prices {
		out = append(out, round(p, pctPlaces))
	}
	return out
}

// boundRationale trims to MaxRationaleRunes with an ellipsis
func boundRationale(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= MaxRationaleRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:MaxRationaleRunes-3])) + "..."
}

// evidence emits one row per successful task, ordered by task name
func evidence(results map[string]*contracts.TaskResult, diag contracts.Diagnostics, asOf time.Time) []contracts.Evidence {
	names := make([]string, 0, len(results))
	for name, res := range results {
		if res != nil && res.Success {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	rows := make([]contracts.Evidence, 0, len(names))
	for _, name := range names {
		res := results[name]

		source := res.Data.String(contracts.KeySource)
		if source == "" {
			source = "unknown"
		}

		var freshness *float64
		if name == taskNews && diag.DataQuality.NewsFreshnessHours != nil {
			freshness = ptr(round(*diag.DataQuality.NewsFreshnessHours, pctPlaces))
		} else if !res.Timestamp.IsZero() {
			freshness = ptr(round(math.Max(0, asOf.Sub(res.Timestamp).Hours()), pctPlaces))
		}

		rows = append(rows, contracts.Evidence{
			Task:           name,
			Direction:      contracts.NormalizeDirection(res.Data.String(contracts.KeyDirection)),
			Strength:       round(strength(name, res.Data), probPlaces),
			FreshnessHours: freshness,
			Source:         source,
		})
	}
	return rows
}

// strength maps each task's headline metric onto [0, 1]
func strength(task string, data contracts.TaskData) float64 {
	scaled := func(key string, scale float64) float64 {
		v, ok := data.Float(key)
		if !ok {
			return 0
		}
		return clamp(math.Abs(v)/scale, 0, 1)
	}

	switch task {
	case taskTechnical:
		return scaled("technical_strength", 100)
	case taskFundamentals:
		v, ok := data.Float("health_score")
		if !ok {
			return 0
		}
		return clamp(math.Abs(v-50)/50, 0, 1)
	case taskSentiment:
		return scaled("sentiment_score", 1)
	case taskNews:
		return scaled("avg_sentiment", 1)
	case taskMarket:
		return scaled("change_pct", 5)
	case taskMacro:
		return scaled("macro_score", 1)
	default:
		if v, ok := data.Float("strength"); ok {
			return clamp(v, 0, 1)
		}
		return 0.5
	}
}
