package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-signal/internal/api"
	"github.com/wonny/aegis-signal/internal/api/handlers"
	"github.com/wonny/aegis-signal/internal/scheduler"
	"github.com/wonny/aegis-signal/internal/scheduler/jobs"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET  /health                  - Health check
  POST /api/analyze/{symbol}    - 분석 실행 (?tasks=market,news)
  GET  /api/tasks               - 태스크 목록
  GET  /api/contracts/{symbol}  - 최근 저장된 시그널 계약 (DATABASE_URL 필요)
  GET  /api/quota               - 업스트림 쿼터 사용량
  GET  /api/cache/stats         - 응답 캐시 통계
  GET  /ws/progress             - 진행 이벤트 (websocket, ?run_id= / ?symbol=)
  GET  /metrics                 - Prometheus metrics

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080`,
	RunE: runAPIServer,
}

var (
	apiPort string
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (기본: PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis Signal API Server ===")

	// 1. Wire components; the hub receives every run's progress
	a, err := newApp(appOptions{ProgressHub: true})
	if err != nil {
		return err
	}
	defer a.Close()

	cfg, log := a.cfg, a.log
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Routes
	routes := api.Routes{
		Analysis: handlers.NewAnalysisHandler(a.engine, log),
		Status:   handlers.NewStatusHandler(a.upstream),
		Progress: a.hub,
	}
	if a.store != nil {
		routes.Contracts = handlers.NewContractHandler(a.store, log)
	}
	if a.metrics != nil {
		routes.Metrics = a.metrics.Handler()
	}

	server := api.New(cfg, log, api.NewRouter(routes, log))

	// 만료 캐시 정리 (장시간 실행 서버)
	sched := scheduler.New(log)
	if err := sched.AddJob(jobs.NewCacheCleanupJob(a.cache, log)); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	// 3. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
