package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-signal/internal/brain"
	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/internal/tasks"
	"github.com/wonny/aegis-signal/pkg/logger"
)

// Engine runs analyses; *brain.Orchestrator satisfies it
type Engine interface {
	Run(ctx context.Context, config brain.RunConfig) (*brain.RunResult, error)
	Registry() *tasks.Registry
}

// AnalysisHandler handles analysis endpoints
// ⭐ SSOT: 분석 API 핸들러는 이 구조체에서만
type AnalysisHandler struct {
	engine Engine
	logger *logger.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(engine Engine, log *logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		engine: engine,
		logger: log,
	}
}

// TaskResultView is the API form of one task result
type TaskResultView struct {
	Success    bool               `json:"success"`
	Data       contracts.TaskData `json:"data,omitempty"`
	Error      string             `json:"error,omitempty"`
	DurationMS int64              `json:"duration_ms"`
}

// AnalyzeResponse is the body of POST /api/analyze/{symbol}
type AnalyzeResponse struct {
	RunID            string                    `json:"run_id"`
	Symbol           string                    `json:"symbol"`
	Success          bool                      `json:"success"`
	Error            string                    `json:"error,omitempty"`
	Persistable      bool                      `json:"persistable"`
	ValidationErrors []string                  `json:"validation_errors,omitempty"`
	CompletedStages  []contracts.Stage         `json:"completed_stages"`
	Contract         *contracts.SignalContract `json:"contract,omitempty"`
	Diagnostics      *contracts.Diagnostics    `json:"diagnostics,omitempty"`
	Results          map[string]TaskResultView `json:"results,omitempty"`
	PersistError     string                    `json:"persist_error,omitempty"`
	DurationMS       int64                     `json:"duration_ms"`
}

// Analyze runs one analysis synchronously
// POST /api/analyze/{symbol}?tasks=market,news
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	symbol, err := contracts.NormalizeSymbol(mux.Vars(r)["symbol"])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := brain.RunConfig{
		Symbol: symbol,
		Tasks:  parseTaskList(r.URL.Query().Get("tasks")),
	}

	result, err := h.engine.Run(r.Context(), cfg)
	if result == nil {
		h.logger.WithError(err).WithField("symbol", symbol).Error("Analysis returned no result")
		respondError(w, http.StatusInternalServerError, "Analysis failed")
		return
	}

	resp := NewAnalyzeResponse(result)
	if err != nil {
		respondJSON(w, statusForRunError(err), resp)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// TaskView is one row of GET /api/tasks
type TaskView struct {
	Name      string   `json:"name"`
	Requires  []string `json:"requires"`
	Enabled   bool     `json:"enabled"`
	Dependent bool     `json:"dependent"`
	TimeoutMS int64    `json:"timeout_ms,omitempty"`
}

// ListTasks returns the task table in declaration order
// GET /api/tasks
func (h *AnalysisHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	specs := h.engine.Registry().Specs()

	out := make([]TaskView, 0, len(specs))
	for _, s := range specs {
		requires := s.Requires
		if requires == nil {
			requires = []string{}
		}
		out = append(out, TaskView{
			Name:      s.Name,
			Requires:  requires,
			Enabled:   s.Enabled,
			Dependent: s.IsDependent(),
			TimeoutMS: s.Timeout.Milliseconds(),
		})
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tasks": out,
		"count": len(out),
	})
}

// NewAnalyzeResponse flattens a run result for JSON output
func NewAnalyzeResponse(result *brain.RunResult) AnalyzeResponse {
	resp := AnalyzeResponse{
		RunID:            result.RunID,
		Symbol:           result.Symbol,
		Success:          result.Success,
		Persistable:      result.Persistable,
		ValidationErrors: result.ValidationErrors,
		CompletedStages:  result.CompletedStages,
		Diagnostics:      result.Diagnostics,
		DurationMS:       result.Duration.Milliseconds(),
	}
	if result.Error != nil {
		resp.Error = result.Error.Error()
	}
	if result.PersistError != nil {
		resp.PersistError = result.PersistError.Error()
	}
	// 검증 실패 계약은 노출하지 않음
	if result.Persistable {
		resp.Contract = result.Contract
	}

	if len(result.Results) > 0 {
		resp.Results = make(map[string]TaskResultView, len(result.Results))
		for name, res := range result.Results {
			if res == nil {
				continue
			}
			resp.Results[name] = TaskResultView{
				Success:    res.Success,
				Data:       res.Data,
				Error:      res.Error,
				DurationMS: res.Duration.Milliseconds(),
			}
		}
	}
	return resp
}

func statusForRunError(err error) int {
	switch {
	case errors.Is(err, tasks.ErrUnknownTask),
		errors.Is(err, tasks.ErrTaskDisabled),
		errors.Is(err, brain.ErrNoTasks),
		errors.Is(err, contracts.ErrInvalidSymbol):
		return http.StatusBadRequest
	case errors.Is(err, brain.ErrBatchTimeout),
		errors.Is(err, brain.ErrStepTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, brain.ErrSynthesisFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// parseTaskList splits "a, b,,c" into [a b c]; empty means all enabled tasks
func parseTaskList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
