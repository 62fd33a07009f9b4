package contracts

// Horizon is a forecast horizon of the signal contract
type Horizon string

const (
	Horizon1D  Horizon = "1d"
	Horizon7D  Horizon = "7d"
	Horizon30D Horizon = "30d"
)

// AllHorizons returns horizons shortest first
func AllHorizons() []Horizon {
	return []Horizon{Horizon1D, Horizon7D, Horizon30D}
}

// Days returns the horizon length in trading days
func (h Horizon) Days() int {
	switch h {
	case Horizon1D:
		return 1
	case Horizon7D:
		return 7
	case Horizon30D:
		return 30
	default:
		return 0
	}
}

// CalibrationStat is an empirical hit rate and the outcomes backing it
type CalibrationStat struct {
	HitRate    float64 `json:"hit_rate"`
	SampleSize int     `json:"sample_size"`
}

// MinCalibrationSamples is the sample size from which an empirical hit rate is trusted
const MinCalibrationSamples = 30
