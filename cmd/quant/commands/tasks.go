package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-signal/internal/tasks"
	"github.com/wonny/aegis-signal/pkg/logger"
)

// tasksCmd represents the tasks command
var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "태스크 목록",
	Long: `등록된 태스크와 의존성, 활성 여부를 출력합니다.
TASKS_CONFIG / TASKS_DISABLED 오버라이드가 반영됩니다.

Example:
  go run ./cmd/quant tasks
  TASKS_DISABLED=macro go run ./cmd/quant tasks`,
	RunE: runTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// 목록만 필요: 태스크 인스턴스는 생성하지 않음
	reg, err := buildRegistry(cfg, tasks.Deps{}, logger.New(cfg))
	if err != nil {
		return err
	}

	widths := []int{14, 8, 20, 10}
	PrintTableHeader([]string{"TASK", "ENABLED", "REQUIRES", "TIMEOUT"}, widths)
	for _, s := range reg.Specs() {
		enabled := "yes"
		if !s.Enabled {
			enabled = "no"
		}
		requires := strings.Join(s.Requires, ",")
		if requires == "" {
			requires = "-"
		}
		timeout := "batch"
		if s.IsDependent() {
			timeout = cfg.Engine.DependentTimeout.String()
			if s.Timeout > 0 {
				timeout = s.Timeout.String()
			}
		}
		PrintTableRow([]string{s.Name, enabled, requires, timeout}, widths)
	}

	fmt.Println()
	return nil
}
