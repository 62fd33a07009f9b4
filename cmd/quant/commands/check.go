package commands

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-signal/pkg/database"
	"github.com/wonny/aegis-signal/pkg/redis"
)

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "설정/연결 점검",
	Long: `설정을 로드하고 선택적 의존성(PostgreSQL, Redis) 연결을 점검합니다.
업스트림 API는 쿼터를 소모하므로 호출하지 않습니다.

Example:
  go run ./cmd/quant check
  go run ./cmd/quant check --config .env.production`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		PrintError(err.Error())
		return err
	}

	PrintTitle("Configuration")
	PrintKeyValue("ENV", cfg.Env, 16)
	PrintKeyValue("Upstream", cfg.Upstream.BaseURL, 16)
	PrintKeyValue("Upstream key", maskSecret(cfg.Upstream.APIKey), 16)
	PrintKeyValue("Quota", fmt.Sprintf("%d/min, %d/day", cfg.Upstream.PerMinute, cfg.Upstream.PerDay), 16)
	PrintKeyValue("LLM", cfg.LLM.Model+" @ "+cfg.LLM.BaseURL, 16)
	PrintKeyValue("LLM key", maskSecret(cfg.LLM.APIKey), 16)
	PrintKeyValue("Kafka", strings.Join(cfg.Kafka.Brokers, ",")+" → "+cfg.Kafka.Topic, 16)
	PrintKeyValue("Watchlist", strings.Join(cfg.Scheduler.Watchlist, ","), 16)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	failed := false

	PrintTitle("PostgreSQL")
	if !cfg.Database.Enabled() {
		PrintWarning("DATABASE_URL not set: runs are not persisted, calibration uses defaults")
	} else {
		PrintKeyValue("URL", redactURL(cfg.Database.URL), 16)
		db, err := database.New(cfg)
		if err != nil {
			PrintError(err.Error())
			failed = true
		} else {
			status := db.HealthCheck(ctx)
			db.Close()
			if status.Healthy {
				PrintSuccess(fmt.Sprintf("Healthy (%v, %d conns)", status.ResponseTime, status.TotalConns))
			} else {
				PrintError("Unhealthy: " + status.Error)
				failed = true
			}
		}
	}

	PrintTitle("Redis")
	if !cfg.Redis.Enabled {
		PrintWarning("REDIS_ENABLED=false: no L2 cache, LLM rate limit is per process")
	} else {
		rc, err := redis.New(cfg)
		if err != nil {
			PrintError(err.Error())
			failed = true
		} else {
			rc.Close()
			PrintSuccess(fmt.Sprintf("Connected (%s:%s)", cfg.Redis.Host, cfg.Redis.Port))
		}
	}

	fmt.Println()
	if failed {
		return fmt.Errorf("one or more checks failed")
	}
	PrintSuccess("All checks passed")
	return nil
}

// maskSecret keeps the last 4 characters
func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return "****" + s[len(s)-4:]
}

// redactURL hides the password of a connection URL
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}
