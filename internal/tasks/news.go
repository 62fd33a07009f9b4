package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/internal/diagnostics"
	"github.com/wonny/aegis-signal/internal/external/alphavantage"
	"github.com/wonny/aegis-signal/internal/external/newsfeed"
	"github.com/wonny/aegis-signal/internal/quota"
)

// KeyHeadlines holds the newest titles ([]string) for dependents
const KeyHeadlines = "headlines"

const (
	maxHeadlines   = 5
	sentimentBand  = 0.15
	defaultNewsCap = 50
)

type newsTask struct {
	deps   Deps
	symbol string
}

type newsItem struct {
	title     string
	published time.Time
	score     *float64
}

type newsRaw struct {
	items    []newsItem
	source   string
	fallback bool
}

func (t *newsTask) Name() string { return NameNews }

// Fetch reads upstream news; when the daily quota is spent it scrapes the
// HTML listing instead and marks the result as fallback
func (t *newsTask) Fetch(ctx context.Context, _ contracts.TaskInput) (interface{}, error) {
	limit := t.deps.NewsLimit
	if limit <= 0 {
		limit = defaultNewsCap
	}

	articles, err := t.deps.Upstream.NewsSentiment(ctx, t.symbol, limit)
	if err == nil {
		return fromArticles(articles), nil
	}
	if !errors.Is(err, quota.ErrExhausted) || t.deps.Headlines == nil {
		return nil, fmt.Errorf("news sentiment: %w", err)
	}

	t.deps.Logger.WithField("symbol", t.symbol).Info("News quota exhausted, using HTML fallback")
	headlines, ferr := t.deps.Headlines.Headlines(ctx, t.symbol)
	if ferr != nil {
		return nil, fmt.Errorf("news fallback: %w", ferr)
	}
	return fromHeadlines(headlines), nil
}

func fromArticles(articles []alphavantage.Article) *newsRaw {
	raw := &newsRaw{source: SourceUpstream, items: make([]newsItem, 0, len(articles))}
	for _, a := range articles {
		score := a.TickerScore
		if score == nil {
			score = a.SentimentScore
		}
		raw.items = append(raw.items, newsItem{title: a.Title, published: a.PublishedAt, score: score})
	}
	return raw
}

func fromHeadlines(headlines []newsfeed.Headline) *newsRaw {
	raw := &newsRaw{source: newsfeed.SourceName, fallback: true, items: make([]newsItem, 0, len(headlines))}
	for _, h := range headlines {
		score := headlineScore(h.Title)
		raw.items = append(raw.items, newsItem{title: h.Title, published: h.PublishedAt, score: &score})
	}
	return raw
}

func (t *newsTask) Analyze(_ context.Context, raw interface{}) (contracts.TaskData, error) {
	r, ok := raw.(*newsRaw)
	if !ok {
		return nil, errors.New("unexpected news payload")
	}

	var sum float64
	var scored int
	var latest time.Time
	headlines := make([]string, 0, maxHeadlines)

	for _, item := range r.items {
		if item.score != nil {
			sum += *item.score
			scored++
		}
		if item.published.After(latest) {
			latest = item.published
		}
		if len(headlines) < maxHeadlines && item.title != "" {
			headlines = append(headlines, item.title)
		}
	}

	avg := 0.0
	if scored > 0 {
		avg = clamp(sum/float64(scored), -1, 1)
	}

	data := contracts.TaskData{
		"article_count": len(r.items),
		"avg_sentiment": avg,
		KeyHeadlines:    headlines,

		contracts.KeyDirection:    directionFrom(avg, sentimentBand),
		contracts.KeySource:       r.source,
		contracts.KeyFallbackUsed: r.fallback,
	}
	if !latest.IsZero() {
		data[diagnostics.KeyLatestPublishedAt] = latest.UTC().Format(time.RFC3339)
	}
	return data, nil
}

var (
	positiveWords = wordSet("beat", "beats", "surge", "surges", "soar", "soars", "upgrade", "upgraded",
		"record", "growth", "gain", "gains", "rally", "rallies", "raises", "strong", "profit", "bullish", "outperform")
	negativeWords = wordSet("miss", "misses", "plunge", "plunges", "downgrade", "downgraded", "lawsuit",
		"loss", "losses", "cut", "cuts", "weak", "bearish", "probe", "recall", "falls", "slump", "slumps")
)

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// headlineScore is a lexicon score in [-1, 1] for scraped titles without sentiment
func headlineScore(title string) float64 {
	var pos, neg int
	for _, w := range strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !(r >= 'a' && r <= 'z')
	}) {
		if _, ok := positiveWords[w]; ok {
			pos++
		}
		if _, ok := negativeWords[w]; ok {
			neg++
		}
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}
