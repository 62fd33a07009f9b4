package store

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signal/internal/contracts"
)

func testRecord(persistable bool) *contracts.AnalysisRecord {
	at := time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC)
	ev := 0.42
	return &contracts.AnalysisRecord{
		RunID:     "run_1",
		Symbol:    "AAPL",
		StartedAt: at,
		Duration:  1500 * time.Millisecond,
		Results: map[string]*contracts.TaskResult{
			"news":   contracts.NewTaskFailure("news", errors.New("quota"), time.Second, at),
			"market": contracts.NewTaskSuccess("market", contracts.TaskData{"price": 100.0}, 2*time.Second, at),
		},
		Synthesis:        &contracts.SynthesisOutput{Recommendation: "BUY"},
		Contract:         &contracts.SignalContract{Symbol: "AAPL", Recommendation: "BUY", EVScore7D: &ev},
		Persistable:      persistable,
		ValidationErrors: nil,
	}
}

func TestNewRunRow(t *testing.T) {
	row, err := newRunRow(testRecord(true))
	require.NoError(t, err)

	assert.Equal(t, int64(1500), row.DurationMS)
	assert.Equal(t, 2, row.TaskCount)
	assert.Equal(t, 1, row.SuccessCount)
	assert.Nil(t, row.ValidationErrors)

	require.Len(t, row.Tasks, 2)
	assert.Equal(t, "market", row.Tasks[0].Name)
	assert.JSONEq(t, `{"price": 100}`, string(row.Tasks[0].Data))
	assert.Nil(t, row.Tasks[0].Error)
	assert.Equal(t, "news", row.Tasks[1].Name)
	assert.Nil(t, row.Tasks[1].Data)
	assert.Equal(t, "quota", *row.Tasks[1].Error)

	require.NotNil(t, row.Contract)
	assert.Equal(t, 0.42, *row.Contract.EVScore7D)

	var decoded contracts.SignalContract
	require.NoError(t, json.Unmarshal(row.Contract.Payload, &decoded))
	assert.Equal(t, "BUY", decoded.Recommendation)
}

func TestNewRunRow_NotPersistableDropsContract(t *testing.T) {
	rec := testRecord(false)
	rec.ValidationErrors = []string{"recommendation: must be one of [BUY HOLD SELL], got MAYBE"}

	row, err := newRunRow(rec)
	require.NoError(t, err)

	assert.Nil(t, row.Contract)
	assert.JSONEq(t, `["recommendation: must be one of [BUY HOLD SELL], got MAYBE"]`, string(row.ValidationErrors))
}

func TestNewRunRow_RequiresRunID(t *testing.T) {
	_, err := newRunRow(&contracts.AnalysisRecord{})
	assert.Error(t, err)
	_, err = newRunRow(nil)
	assert.Error(t, err)
}
