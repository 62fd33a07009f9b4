package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signal/internal/brain"
	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/internal/quota"
	"github.com/wonny/aegis-signal/internal/respcache"
	"github.com/wonny/aegis-signal/internal/store"
	"github.com/wonny/aegis-signal/internal/tasks"
	"github.com/wonny/aegis-signal/pkg/logger"
)

type fakeEngine struct {
	registry *tasks.Registry
	result   *brain.RunResult
	err      error
	got      brain.RunConfig
}

func (f *fakeEngine) Run(_ context.Context, cfg brain.RunConfig) (*brain.RunResult, error) {
	f.got = cfg
	if f.result != nil {
		f.result.Symbol = cfg.Symbol
	}
	return f.result, f.err
}

func (f *fakeEngine) Registry() *tasks.Registry { return f.registry }

func testRegistry(t *testing.T) *tasks.Registry {
	t.Helper()
	noop := func(string) contracts.Task { return nil }
	reg, err := tasks.NewRegistry(
		tasks.Spec{Name: "market", New: noop, Enabled: true},
		tasks.Spec{Name: "news", New: noop, Enabled: false},
		tasks.Spec{Name: "sentiment", New: noop, Requires: []string{"market", "news"}, Enabled: true, Timeout: 5 * time.Second},
	)
	require.NoError(t, err)
	return reg
}

func serveAnalyze(h *AnalysisHandler, target string) *httptest.ResponseRecorder {
	r := mux.NewRouter()
	r.HandleFunc("/api/analyze/{symbol}", h.Analyze).Methods("POST")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
	return rec
}

func TestAnalyze_Success(t *testing.T) {
	ev := 1.5
	engine := &fakeEngine{result: &brain.RunResult{
		RunID:       "run_1",
		Success:     true,
		Persistable: true,
		Contract:    &contracts.SignalContract{Recommendation: "BUY", EVScore7D: &ev},
		Results: map[string]*contracts.TaskResult{
			"market": {Success: true, Data: contracts.TaskData{"price": 10.0}, Duration: 250 * time.Millisecond},
		},
		Duration: 2 * time.Second,
	}}
	h := NewAnalysisHandler(engine, logger.Nop())

	rec := serveAnalyze(h, "/api/analyze/aapl?tasks=Market,%20news,")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAPL", engine.got.Symbol)
	assert.Equal(t, []string{"market", "news"}, engine.got.Tasks)

	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run_1", resp.RunID)
	assert.Equal(t, "AAPL", resp.Symbol)
	require.NotNil(t, resp.Contract)
	assert.Equal(t, "BUY", resp.Contract.Recommendation)
	assert.Equal(t, int64(250), resp.Results["market"].DurationMS)
	assert.Equal(t, int64(2000), resp.DurationMS)
}

func TestAnalyze_NotPersistableHidesContract(t *testing.T) {
	engine := &fakeEngine{result: &brain.RunResult{
		RunID:            "run_2",
		Success:          true,
		Persistable:      false,
		Contract:         &contracts.SignalContract{Recommendation: "MAYBE"},
		ValidationErrors: []string{"recommendation: invalid"},
	}}
	rec := serveAnalyze(NewAnalysisHandler(engine, logger.Nop()), "/api/analyze/MSFT")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp AnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Nil(t, resp.Contract)
	assert.False(t, resp.Persistable)
	assert.Equal(t, []string{"recommendation: invalid"}, resp.ValidationErrors)
}

func TestAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"invalid symbol", "/api/analyze/BAD%20SYM", nil, http.StatusBadRequest},
		{"unknown task", "/api/analyze/AAPL", fmt.Errorf("resolve tasks: %w", tasks.ErrUnknownTask), http.StatusBadRequest},
		{"disabled task", "/api/analyze/AAPL", fmt.Errorf("resolve tasks: %w", tasks.ErrTaskDisabled), http.StatusBadRequest},
		{"batch timeout", "/api/analyze/AAPL", brain.ErrBatchTimeout, http.StatusGatewayTimeout},
		{"synthesis timeout", "/api/analyze/AAPL", fmt.Errorf("%w: synthesis", brain.ErrStepTimeout), http.StatusGatewayTimeout},
		{"synthesis failed", "/api/analyze/AAPL", fmt.Errorf("%w: boom", brain.ErrSynthesisFailed), http.StatusBadGateway},
		{"other", "/api/analyze/AAPL", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{result: &brain.RunResult{RunID: "run_x", Error: tt.err}, err: tt.err}
			rec := serveAnalyze(NewAnalysisHandler(engine, logger.Nop()), tt.target)

			assert.Equal(t, tt.want, rec.Code)
			if tt.err != nil {
				assert.Contains(t, rec.Body.String(), "run_x")
			}
		})
	}
}

func TestAnalyze_NilResult(t *testing.T) {
	engine := &fakeEngine{err: errors.New("boom")}
	rec := serveAnalyze(NewAnalysisHandler(engine, logger.Nop()), "/api/analyze/AAPL")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListTasks(t *testing.T) {
	h := NewAnalysisHandler(&fakeEngine{registry: testRegistry(t)}, logger.Nop())

	rec := httptest.NewRecorder()
	h.ListTasks(rec, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tasks []TaskView `json:"tasks"`
		Count int        `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Count)
	assert.Equal(t, "market", body.Tasks[0].Name)
	assert.Equal(t, []string{}, body.Tasks[0].Requires)
	assert.False(t, body.Tasks[1].Enabled)
	assert.True(t, body.Tasks[2].Dependent)
	assert.Equal(t, int64(5000), body.Tasks[2].TimeoutMS)
}

type fakeContractReader struct {
	contracts map[string]*contracts.SignalContract
	err       error
	asked     string
}

func (f *fakeContractReader) LatestContract(_ context.Context, symbol string) (*contracts.SignalContract, error) {
	f.asked = symbol
	if f.err != nil {
		return nil, f.err
	}
	c, ok := f.contracts[symbol]
	if !ok {
		return nil, store.ErrContractNotFound
	}
	return c, nil
}

func serveContract(h *ContractHandler, target string) *httptest.ResponseRecorder {
	r := mux.NewRouter()
	r.HandleFunc("/api/contracts/{symbol}", h.GetLatest).Methods("GET")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestContractHandler_GetLatest(t *testing.T) {
	reader := &fakeContractReader{contracts: map[string]*contracts.SignalContract{
		"AAPL": {Schema: contracts.SignalSchema, Symbol: "AAPL", Recommendation: "BUY"},
	}}
	h := NewContractHandler(reader, logger.Nop())

	rec := serveContract(h, "/api/contracts/aapl")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "AAPL", reader.asked)

	var got contracts.SignalContract
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "BUY", got.Recommendation)
	assert.Equal(t, "AAPL", got.Symbol)
}

func TestContractHandler_Errors(t *testing.T) {
	tests := []struct {
		name   string
		target string
		err    error
		want   int
	}{
		{"invalid symbol", "/api/contracts/BAD%20SYM", nil, http.StatusBadRequest},
		{"not found", "/api/contracts/MSFT", nil, http.StatusNotFound},
		{"db error", "/api/contracts/MSFT", errors.New("conn reset"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewContractHandler(&fakeContractReader{err: tt.err}, logger.Nop())
			rec := serveContract(h, tt.target)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

type fakeUpstream struct{}

func (fakeUpstream) QuotaSnapshot() quota.Snapshot {
	return quota.Snapshot{DailyUsed: 3, DailyLimit: 25, DailyRemaining: 22}
}

func (fakeUpstream) CacheStats() respcache.Stats {
	return respcache.Stats{Hits: 4, Misses: 1, HitRate: 0.8}
}

func TestStatusHandler(t *testing.T) {
	h := NewStatusHandler(fakeUpstream{})

	rec := httptest.NewRecorder()
	h.GetQuota(rec, httptest.NewRequest(http.MethodGet, "/api/quota", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"daily_remaining":22`)

	rec = httptest.NewRecorder()
	h.GetCacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/cache/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"hit_rate":0.8`)
}

func dialProgress(t *testing.T, hub *ProgressHub, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestProgressHub_Streams(t *testing.T) {
	hub := NewProgressHub(nil)
	conn := dialProgress(t, hub, "?symbol=aapl")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.Notify(contracts.ProgressEvent{RunID: "run_1", InstrumentID: "MSFT", Stage: contracts.StageStart})
	hub.Notify(contracts.ProgressEvent{RunID: "run_2", InstrumentID: "AAPL", Stage: contracts.StageStart, ProgressPercent: 0})
	hub.Notify(contracts.ProgressEvent{RunID: "run_2", InstrumentID: "AAPL", Stage: contracts.StageComplete, ProgressPercent: 100})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first, second contracts.ProgressEvent
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "run_2", first.RunID)
	assert.Equal(t, contracts.StageStart, first.Stage)
	assert.Equal(t, 100, second.ProgressPercent)
}

func TestProgressHub_UnregistersOnClose(t *testing.T) {
	hub := NewProgressHub(nil)
	conn := dialProgress(t, hub, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)

	// 구독자 없음: 블록되지 않아야 함
	hub.Notify(contracts.ProgressEvent{RunID: "run_1"})
}
