package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/internal/external/alphavantage"
)

// Macro signals consumed by the regime classifier
const (
	MacroRiskOn  = "risk_on"
	MacroRiskOff = "risk_off"
	MacroNeutral = "neutral"
)

// macroTask is instrument independent; every run shares the cached series
type macroTask struct {
	deps Deps
}

type macroRaw struct {
	series map[string][]alphavantage.EconomicPoint
}

func (t *macroTask) Name() string { return NameMacro }

// Fetch reads each series; partial data is enough
func (t *macroTask) Fetch(ctx context.Context, _ contracts.TaskInput) (interface{}, error) {
	raw := &macroRaw{series: make(map[string][]alphavantage.EconomicPoint, 3)}

	var errs []error
	for _, fn := range []string{
		alphavantage.FunctionFedFundsRate,
		alphavantage.FunctionCPI,
		alphavantage.FunctionTreasuryYield,
	} {
		points, err := t.deps.Upstream.Economic(ctx, fn)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", fn, err))
			continue
		}
		raw.series[fn] = points
	}

	if len(raw.series) == 0 {
		return nil, errors.Join(errs...)
	}
	if len(errs) > 0 {
		t.deps.Logger.WithError(errors.Join(errs...)).Warn("Some macro series unavailable")
	}
	return raw, nil
}

func (t *macroTask) Analyze(_ context.Context, raw interface{}) (contracts.TaskData, error) {
	r, ok := raw.(*macroRaw)
	if !ok {
		return nil, errors.New("unexpected macro payload")
	}

	data := contracts.TaskData{
		contracts.KeySource:       SourceUpstream,
		contracts.KeyFallbackUsed: false,
	}
	score := 0.0

	// 금리 방향: 3개월 전 대비
	if pts := r.series[alphavantage.FunctionFedFundsRate]; len(pts) > 0 {
		data["fed_funds_rate"] = pts[0].Value
		if len(pts) > 3 {
			trend := pts[0].Value - pts[3].Value
			data["fed_funds_change_3m"] = trend
			switch {
			case trend < -0.1:
				score += 0.4
			case trend > 0.1:
				score -= 0.4
			}
		}
	}

	// CPI 전년 대비
	if pts := r.series[alphavantage.FunctionCPI]; len(pts) > 12 && pts[12].Value > 0 {
		inflation := (pts[0].Value/pts[12].Value - 1) * 100
		data["cpi_yoy_pct"] = inflation
		switch {
		case inflation < 3:
			score += 0.3
		case inflation > 4:
			score -= 0.3
		}
	}

	if pts := r.series[alphavantage.FunctionTreasuryYield]; len(pts) > 0 {
		data["treasury_10y"] = pts[0].Value
		switch {
		case pts[0].Value < 4:
			score += 0.3
		case pts[0].Value > 5:
			score -= 0.3
		}
	}

	score = clamp(score, -1, 1)
	data["macro_score"] = score

	signal := MacroNeutral
	switch {
	case score >= 0.3:
		signal = MacroRiskOn
	case score <= -0.3:
		signal = MacroRiskOff
	}
	data["macro_signal"] = signal
	data[contracts.KeyDirection] = directionFrom(score, 0.3)

	return data, nil
}
