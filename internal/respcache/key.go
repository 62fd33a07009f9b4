package respcache

import (
	"sort"
	"strings"
	"time"
)

// credentialFields never take part in a cache key
var credentialFields = map[string]struct{}{
	"apikey":  {},
	"api_key": {},
	"token":   {},
	"secret":  {},
}

// Key normalizes request parameters: credentials dropped, names sorted,
// pairs joined as name=value. Requests differing only by API key share a key.
func Key(params map[string]string) string {
	names := make([]string, 0, len(params))
	for name := range params {
		if _, secret := credentialFields[strings.ToLower(name)]; secret {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+params[name])
	}
	return strings.Join(pairs, "&")
}

// Category is the logical kind of an upstream request; it selects the TTL
type Category string

const (
	CategoryQuote        Category = "quote"
	CategoryTimeSeries   Category = "timeseries"
	CategoryNews         Category = "news"
	CategoryFundamentals Category = "fundamentals"
	CategoryMacro        Category = "macro"
)

// TTLPolicy maps categories to TTLs. Unknown categories get Default.
type TTLPolicy struct {
	ByCategory map[Category]time.Duration
	Default    time.Duration
}

// DefaultTTLPolicy: quotes short, slow-moving data long
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		ByCategory: map[Category]time.Duration{
			CategoryQuote:        1 * time.Minute,
			CategoryTimeSeries:   15 * time.Minute,
			CategoryNews:         10 * time.Minute,
			CategoryFundamentals: 24 * time.Hour,
			CategoryMacro:        24 * time.Hour,
		},
		Default: 5 * time.Minute,
	}
}

// For returns the TTL of a category
func (p TTLPolicy) For(c Category) time.Duration {
	if ttl, ok := p.ByCategory[c]; ok && ttl > 0 {
		return ttl
	}
	if p.Default > 0 {
		return p.Default
	}
	return time.Minute
}
