package diagnostics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signal/internal/contracts"
)

func TestSummarize(t *testing.T) {
	now := time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)
	results := map[string]*contracts.TaskResult{
		"market": contracts.NewTaskSuccess("market", contracts.TaskData{"direction": "bullish"}, 0, now),
		"technical": contracts.NewTaskSuccess("technical", contracts.TaskData{"direction": "BEARISH"}, 0, now),
		"news": contracts.NewTaskSuccess("news", contracts.TaskData{
			"direction":           "sideways",
			"fallback_used":       true,
			"latest_published_at": "2026-03-02T09:00:00Z",
		}, 0, now),
		"macro": contracts.NewTaskFailure("macro", errors.New("quota"), 0, now),
	}

	d := Summarize(results, now)

	assert.InDelta(t, 0.75, d.DataQuality.AgentSuccessRate, 1e-9)
	assert.Equal(t, 3, d.DataQuality.SuccessfulAgents)
	assert.Equal(t, []string{"news"}, d.DataQuality.FallbackSourceAgents)
	require.NotNil(t, d.DataQuality.NewsFreshnessHours)
	assert.InDelta(t, 6.0, *d.DataQuality.NewsFreshnessHours, 1e-9)

	assert.Equal(t, 1, d.Disagreement.BullishCount)
	assert.Equal(t, 1, d.Disagreement.BearishCount)
	assert.Equal(t, map[string]string{
		"market":    "bullish",
		"technical": "bearish",
		"news":      "neutral",
	}, d.Disagreement.AgentDirections)
}

func TestSummarize_Empty(t *testing.T) {
	d := Summarize(nil, time.Now())
	assert.Zero(t, d.DataQuality.AgentSuccessRate)
	assert.Nil(t, d.DataQuality.NewsFreshnessHours)
	assert.NotNil(t, d.DataQuality.FallbackSourceAgents)
}
