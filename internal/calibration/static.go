package calibration

import (
	"context"

	"github.com/wonny/aegis-signal/internal/contracts"
)

// Static serves fixed stats per horizon. Used when no database is configured
// and in tests; a missing horizon reports zero samples.
type Static map[contracts.Horizon]contracts.CalibrationStat

// HitRate implements contracts.CalibrationLookup
func (s Static) HitRate(_ context.Context, horizon contracts.Horizon, _ float64) (contracts.CalibrationStat, error) {
	return s[horizon], nil
}
