package tasks

import (
	"context"
	"errors"

	"github.com/wonny/aegis-signal/internal/contracts"
)

// Sentiment blend weights
const (
	newsWeight   = 0.6
	marketWeight = 0.4
)

// ErrNoPrerequisiteData is returned when neither news nor market succeeded
var ErrNoPrerequisiteData = errors.New("no prerequisite data")

// sentimentTask blends injected news tone with same-day price reaction.
// It makes no upstream calls.
type sentimentTask struct {
	symbol string
}

func (t *sentimentTask) Name() string { return NameSentiment }

func (t *sentimentTask) Fetch(_ context.Context, in contracts.TaskInput) (interface{}, error) {
	if len(in.Prerequisites) == 0 {
		return nil, ErrNoPrerequisiteData
	}
	return in.Prerequisites, nil
}

func (t *sentimentTask) Analyze(_ context.Context, raw interface{}) (contracts.TaskData, error) {
	prereqs, ok := raw.(map[string]contracts.TaskData)
	if !ok {
		return nil, errors.New("unexpected sentiment payload")
	}

	var score, weight float64
	inputs := make([]string, 0, 2)
	data := contracts.TaskData{}

	if news, ok := prereqs[NameNews]; ok {
		if avg, ok := news.Float("avg_sentiment"); ok {
			score += newsWeight * clamp(avg, -1, 1)
			weight += newsWeight
			inputs = append(inputs, NameNews)
			data["news_tone"] = avg
		}
		if news.Bool(contracts.KeyFallbackUsed) {
			data["news_fallback"] = true
		}
	}

	if market, ok := prereqs[NameMarket]; ok {
		if chg, ok := market.Float("change_pct"); ok {
			reaction := clamp(chg/5, -1, 1)
			score += marketWeight * reaction
			weight += marketWeight
			inputs = append(inputs, NameMarket)
			data["price_reaction"] = reaction
		}
	}

	if weight == 0 {
		return nil, ErrNoPrerequisiteData
	}

	sentiment := clamp(score/weight, -1, 1)
	data["sentiment_score"] = sentiment
	data["inputs"] = inputs
	data[contracts.KeyDirection] = directionFrom(sentiment, sentimentBand)
	data[contracts.KeySource] = SourceDerived
	data[contracts.KeyFallbackUsed] = false

	return data, nil
}
