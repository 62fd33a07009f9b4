package newsfeed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/aegis-signal/pkg/httputil"
	"github.com/wonny/aegis-signal/pkg/logger"
)

// SourceName tags headlines that came from the HTML listing
const SourceName = "html_fallback"

// Headline is one scraped news item
type Headline struct {
	Title       string
	URL         string
	PublishedAt time.Time // zero when the page has no timestamp
	Source      string
}

// Scraper reads a public news listing page. It is the fallback when the
// upstream news quota is spent, so it never touches the quota gate.
// ⭐ SSOT: 뉴스 HTML 스크래핑은 여기서만
type Scraper struct {
	httpClient  *httputil.Client
	logger      *logger.Logger
	urlPattern  string // contains one %s for the symbol
	maxArticles int
}

// NewScraper creates a new listing scraper
func NewScraper(httpClient *httputil.Client, urlPattern string, maxArticles int, log *logger.Logger) *Scraper {
	if maxArticles <= 0 {
		maxArticles = 20
	}
	return &Scraper{
		httpClient:  httpClient,
		logger:      log.WithComponent("newsfeed"),
		urlPattern:  urlPattern,
		maxArticles: maxArticles,
	}
}

// Headlines fetches and parses the listing for symbol
func (s *Scraper) Headlines(ctx context.Context, symbol string) ([]Headline, error) {
	pageURL := fmt.Sprintf(s.urlPattern, url.PathEscape(symbol))
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid listing url: %w", err)
	}

	body, err := s.httpClient.GetBody(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}

	headlines, err := ParseHeadlines(bytes.NewReader(body), base, s.maxArticles)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(headlines),
	}).Debug("Scraped fallback headlines")
	return headlines, nil
}

// ParseHeadlines extracts items that carry a heading: article, li and
// .news-item blocks. Relative links are resolved against base.
func ParseHeadlines(r io.Reader, base *url.URL, max int) ([]Headline, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}

	seen := make(map[string]struct{})
	var out []Headline

	doc.Find("article, li, div.news-item").EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if max > 0 && len(out) >= max {
			return false
		}

		heading := item.Find("h3, h2").First()
		title := strings.Join(strings.Fields(heading.Text()), " ")
		if title == "" {
			return true
		}
		if _, dup := seen[title]; dup {
			return true
		}
		seen[title] = struct{}{}

		h := Headline{Title: title, Source: SourceName}

		link := heading.Find("a[href]").First()
		if link.Length() == 0 {
			link = item.Find("a[href]").First()
		}
		if href, ok := link.Attr("href"); ok {
			h.URL = resolve(base, href)
		}

		if ts, ok := item.Find("time[datetime]").First().Attr("datetime"); ok {
			if t, err := time.Parse(time.RFC3339, strings.TrimSpace(ts)); err == nil {
				h.PublishedAt = t.UTC()
			}
		}

		out = append(out, h)
		return true
	})

	return out, nil
}

func resolve(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base == nil {
		return ref.String()
	}
	return base.ResolveReference(ref).String()
}
