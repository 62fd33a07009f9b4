package calibration

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/aegis-signal/internal/contracts"
)

// BucketWidth is the confidence range pooled into one hit rate
const BucketWidth = 0.1

// Repository reads empirical hit rates from resolved signal outcomes
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new calibration repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// HitRate returns the hit rate of past contracts whose raw confidence fell in
// the same bucket. An empty bucket yields a zero stat, not an error.
func (r *Repository) HitRate(ctx context.Context, horizon contracts.Horizon, confidence float64) (contracts.CalibrationStat, error) {
	lo, hi := Bucket(confidence)

	var (
		n    int
		hits int
	)
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE hit)
		FROM signal.signal_outcomes
		WHERE horizon = $1 AND confidence >= $2 AND confidence < $3`,
		string(horizon), lo, hi,
	).Scan(&n, &hits)
	if err != nil {
		return contracts.CalibrationStat{}, fmt.Errorf("query hit rate: %w", err)
	}

	return statOf(hits, n), nil
}

// Bucket returns the half-open confidence range [lo, hi) holding c.
// The top bucket is widened so that c == 1 falls inside it.
func Bucket(c float64) (lo, hi float64) {
	if math.IsNaN(c) || c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	idx := math.Floor(c/BucketWidth + 1e-9)
	if idx >= 1/BucketWidth {
		idx = 1/BucketWidth - 1
	}
	lo = math.Round(idx*BucketWidth*1000) / 1000
	hi = math.Round((idx+1)*BucketWidth*1000) / 1000
	if hi >= 1 {
		hi = 1.000001
	}
	return lo, hi
}

func statOf(hits, n int) contracts.CalibrationStat {
	if n <= 0 {
		return contracts.CalibrationStat{}
	}
	return contracts.CalibrationStat{
		HitRate:    float64(hits) / float64(n),
		SampleSize: n,
	}
}
