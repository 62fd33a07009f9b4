package diagnostics

import (
	"sort"
	"time"

	"github.com/wonny/aegis-signal/internal/contracts"
)

// Task data keys read by the summarizer
const (
	KeyLatestPublishedAt = "latest_published_at" // RFC3339, set by the news task
	NewsTask             = "news"
)

// Summarize derives data quality and disagreement inputs from a run's results
func Summarize(results map[string]*contracts.TaskResult, now time.Time) contracts.Diagnostics {
	d := contracts.Diagnostics{
		DataQuality: contracts.DataQuality{
			FallbackSourceAgents: []string{},
		},
		Disagreement: contracts.Disagreement{
			AgentDirections: make(map[string]string, len(results)),
		},
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	succeeded := 0
	for _, name := range names {
		res := results[name]
		if res == nil || !res.Success {
			continue
		}
		succeeded++

		if res.Data.Bool(contracts.KeyFallbackUsed) {
			d.DataQuality.FallbackSourceAgents = append(d.DataQuality.FallbackSourceAgents, name)
		}

		direction := contracts.NormalizeDirection(res.Data.String(contracts.KeyDirection))
		d.Disagreement.AgentDirections[name] = direction
		switch direction {
		case contracts.DirectionBullish:
			d.Disagreement.BullishCount++
		case contracts.DirectionBearish:
			d.Disagreement.BearishCount++
		}
	}

	d.DataQuality.SuccessfulAgents = succeeded
	if len(results) > 0 {
		d.DataQuality.AgentSuccessRate = float64(succeeded) / float64(len(results))
	}
	d.DataQuality.NewsFreshnessHours = newsFreshness(results[NewsTask], now)

	return d
}

// newsFreshness returns hours since the newest article, nil when unknown
func newsFreshness(res *contracts.TaskResult, now time.Time) *float64 {
	if res == nil || !res.Success {
		return nil
	}
	raw, _ := res.Data[KeyLatestPublishedAt].(string)
	if raw == "" {
		return nil
	}
	published, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil
	}
	hours := now.Sub(published).Hours()
	if hours < 0 {
		hours = 0
	}
	return &hours
}
