package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/aegis-signal/internal/respcache"
)

// newsTimeLayout is the upstream time_published format
const newsTimeLayout = "20060102T150405"

// NewsSentiment fetches recent articles for symbol, newest first
func (c *Client) NewsSentiment(ctx context.Context, symbol string, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 50
	}
	body, err := c.Query(ctx, respcache.CategoryNews, map[string]string{
		"function": "NEWS_SENTIMENT",
		"tickers":  symbol,
		"limit":    strconv.Itoa(limit),
		"sort":     "LATEST",
	})
	if err != nil {
		return nil, err
	}
	return parseNewsSentiment(body, symbol)
}

// flexNumber accepts JSON numbers and numeric strings
type flexNumber struct {
	value *float64
}

func (f *flexNumber) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	f.value = parseNumberPtr(s)
	return nil
}

func parseNewsSentiment(body []byte, symbol string) ([]Article, error) {
	var resp struct {
		Feed []struct {
			Title           string     `json:"title"`
			URL             string     `json:"url"`
			TimePublished   string     `json:"time_published"`
			Summary         string     `json:"summary"`
			Source          string     `json:"source"`
			OverallScore    flexNumber `json:"overall_sentiment_score"`
			TickerSentiment []struct {
				Ticker    string     `json:"ticker"`
				Relevance flexNumber `json:"relevance_score"`
				Score     flexNumber `json:"ticker_sentiment_score"`
			} `json:"ticker_sentiment"`
		} `json:"feed"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode news: %w", err)
	}
	if resp.Feed == nil {
		return nil, fmt.Errorf("news: %w", ErrNoData)
	}

	articles := make([]Article, 0, len(resp.Feed))
	for _, item := range resp.Feed {
		a := Article{
			Title:          item.Title,
			URL:            item.URL,
			Source:         item.Source,
			Summary:        item.Summary,
			SentimentScore: item.OverallScore.value,
		}
		if t, err := time.Parse(newsTimeLayout, item.TimePublished); err == nil {
			a.PublishedAt = t.UTC()
		}
		for _, ts := range item.TickerSentiment {
			if strings.EqualFold(ts.Ticker, symbol) {
				a.TickerScore = ts.Score.value
				a.Relevance = ts.Relevance.value
				break
			}
		}
		articles = append(articles, a)
	}

	sort.SliceStable(articles, func(i, j int) bool {
		return articles[i].PublishedAt.After(articles[j].PublishedAt)
	})
	return articles, nil
}
