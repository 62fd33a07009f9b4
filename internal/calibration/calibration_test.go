package calibration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signal/internal/contracts"
)

func TestBucket(t *testing.T) {
	tests := []struct {
		name   string
		in     float64
		lo, hi float64
	}{
		{"zero", 0, 0, 0.1},
		{"middle", 0.62, 0.6, 0.7},
		{"boundary", 0.7, 0.7, 0.8},
		{"top", 0.95, 0.9, 1.000001},
		{"one", 1, 0.9, 1.000001},
		{"negative clamps", -0.3, 0, 0.1},
		{"above one clamps", 1.4, 0.9, 1.000001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lo, hi := Bucket(tt.in)
			assert.InDelta(t, tt.lo, lo, 1e-9)
			assert.InDelta(t, tt.hi, hi, 1e-9)
			assert.True(t, tt.in < 0 || tt.in > 1 || (tt.in >= lo && tt.in < hi))
		})
	}
}

func TestStatOf(t *testing.T) {
	assert.Equal(t, contracts.CalibrationStat{}, statOf(0, 0))

	s := statOf(31, 50)
	assert.InDelta(t, 0.62, s.HitRate, 1e-9)
	assert.Equal(t, 50, s.SampleSize)
}

func TestStatic(t *testing.T) {
	s := Static{contracts.Horizon7D: {HitRate: 0.61, SampleSize: 120}}

	got, err := s.HitRate(context.Background(), contracts.Horizon7D, 0.5)
	require.NoError(t, err)
	assert.Equal(t, 120, got.SampleSize)

	got, err = s.HitRate(context.Background(), contracts.Horizon30D, 0.5)
	require.NoError(t, err)
	assert.Zero(t, got.SampleSize)
}
