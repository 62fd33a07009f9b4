package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-signal/internal/api/handlers"
	"github.com/wonny/aegis-signal/pkg/logger"
)

// Routes are the handlers mounted by NewRouter. Contracts and Metrics are optional.
type Routes struct {
	Analysis  *handlers.AnalysisHandler
	Contracts *handlers.ContractHandler
	Status    *handlers.StatusHandler
	Progress  *handlers.ProgressHub
	Metrics   http.Handler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(routes Routes, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	if routes.Metrics != nil {
		r.Handle("/metrics", routes.Metrics).Methods("GET")
	}

	// Progress stream (websocket; 로깅 미들웨어 밖에서 장시간 연결 유지)
	if routes.Progress != nil {
		r.HandleFunc("/ws/progress", routes.Progress.ServeWS).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Analysis endpoints
	api.HandleFunc("/analyze/{symbol}", routes.Analysis.Analyze).Methods("POST")
	api.HandleFunc("/tasks", routes.Analysis.ListTasks).Methods("GET")

	// Persisted contracts (DB 설정 시에만)
	if routes.Contracts != nil {
		api.HandleFunc("/contracts/{symbol}", routes.Contracts.GetLatest).Methods("GET")
	}

	// Upstream status
	if routes.Status != nil {
		api.HandleFunc("/quota", routes.Status.GetQuota).Methods("GET")
		api.HandleFunc("/cache/stats", routes.Status.GetCacheStats).Methods("GET")
	}

	// Apply middleware
	api.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "aegis-signal-api",
	})
}

// statusRecorder captures the response code for request logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			// Call next handler
			next.ServeHTTP(rec, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
