package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/aegis-signal/internal/contracts"
)

// runRow is the flattened form of an AnalysisRecord
type runRow struct {
	RunID            string
	Symbol           string
	StartedAt        time.Time
	DurationMS       int64
	TaskCount        int
	SuccessCount     int
	Persistable      bool
	ValidationErrors []byte
	Synthesis        []byte
	Tasks            []taskRow
	Contract         *contractRow
}

type taskRow struct {
	Name        string
	Success     bool
	Data        []byte
	Error       *string
	DurationMS  int64
	CompletedAt time.Time
}

type contractRow struct {
	Symbol         string
	Recommendation string
	GeneratedAt    time.Time
	ConfidenceRaw  *float64
	EVScore7D      *float64
	Payload        []byte
}

// newRunRow encodes JSON columns. The contract row only exists for persistable records.
func newRunRow(rec *contracts.AnalysisRecord) (*runRow, error) {
	if rec == nil || rec.RunID == "" {
		return nil, fmt.Errorf("record has no run id")
	}

	row := &runRow{
		RunID:        rec.RunID,
		Symbol:       rec.Symbol,
		StartedAt:    rec.StartedAt,
		DurationMS:   rec.Duration.Milliseconds(),
		TaskCount:    len(rec.Results),
		SuccessCount: rec.SuccessCount(),
		Persistable:  rec.Persistable,
	}

	var err error
	if len(rec.ValidationErrors) > 0 {
		if row.ValidationErrors, err = json.Marshal(rec.ValidationErrors); err != nil {
			return nil, fmt.Errorf("encode validation errors: %w", err)
		}
	}
	if rec.Synthesis != nil {
		if row.Synthesis, err = json.Marshal(rec.Synthesis); err != nil {
			return nil, fmt.Errorf("encode synthesis: %w", err)
		}
	}

	names := make([]string, 0, len(rec.Results))
	for name := range rec.Results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := rec.Results[name]
		if res == nil {
			continue
		}
		t := taskRow{
			Name:        name,
			Success:     res.Success,
			DurationMS:  res.Duration.Milliseconds(),
			CompletedAt: res.Timestamp,
		}
		if res.Success {
			if t.Data, err = json.Marshal(res.Data); err != nil {
				return nil, fmt.Errorf("encode %s data: %w", name, err)
			}
		} else {
			msg := res.Error
			t.Error = &msg
		}
		row.Tasks = append(row.Tasks, t)
	}

	if rec.Persistable && rec.Contract != nil {
		payload, err := json.Marshal(rec.Contract)
		if err != nil {
			return nil, fmt.Errorf("encode contract: %w", err)
		}
		row.Contract = &contractRow{
			Symbol:         rec.Contract.Symbol,
			Recommendation: rec.Contract.Recommendation,
			GeneratedAt:    rec.Contract.GeneratedAt,
			ConfidenceRaw:  rec.Contract.Confidence.Raw,
			EVScore7D:      rec.Contract.EVScore7D,
			Payload:        payload,
		}
	}

	return row, nil
}
