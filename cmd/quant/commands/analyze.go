package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-signal/internal/api/handlers"
	"github.com/wonny/aegis-signal/internal/brain"
	"github.com/wonny/aegis-signal/internal/contracts"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze SYMBOL",
	Short: "종목 1회 분석",
	Long: `종목 하나를 분석하고 signal contract를 출력합니다.

단계:
- 독립 태스크 병렬 실행 (공유 데드라인)
- 의존 태스크 실행 (선행 결과 주입)
- LLM 합성 → contract 빌드 → 검증 → 저장/발행

Example:
  go run ./cmd/quant analyze AAPL
  go run ./cmd/quant analyze msft --tasks market,technical
  go run ./cmd/quant analyze NVDA --json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeTasks []string
	analyzeJSON  bool
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringSliceVar(&analyzeTasks, "tasks", nil, "실행할 태스크 (기본: 활성 태스크 전체)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "JSON 출력")
}

// consoleProgress prints lifecycle events to stderr
type consoleProgress struct{}

func (consoleProgress) Notify(ev contracts.ProgressEvent) {
	line := fmt.Sprintf("[%3d%%] %-11s", ev.ProgressPercent, ev.Stage)
	if ev.Message != "" {
		line += " " + ev.Message
	}
	fmt.Fprintln(os.Stderr, line)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	symbol, err := contracts.NormalizeSymbol(args[0])
	if err != nil {
		return err
	}

	opts := appOptions{}
	if !analyzeJSON {
		opts.Notifier = consoleProgress{}
	}

	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tasks := make([]string, 0, len(analyzeTasks))
	for _, t := range analyzeTasks {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			tasks = append(tasks, t)
		}
	}

	result, runErr := a.engine.Run(ctx, brain.RunConfig{Symbol: symbol, Tasks: tasks})
	if result == nil {
		return runErr
	}

	if analyzeJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(handlers.NewAnalyzeResponse(result)); err != nil {
			return err
		}
		return runErr
	}

	printRunResult(result)
	return runErr
}

func printRunResult(r *brain.RunResult) {
	PrintTitle(fmt.Sprintf("%s  (run %s)", r.Symbol, r.RunID))
	PrintKeyValue("Duration", r.Duration.String(), 14)

	if len(r.Results) > 0 {
		fmt.Println()
		names := make([]string, 0, len(r.Results))
		for name := range r.Results {
			names = append(names, name)
		}
		sort.Strings(names)

		widths := []int{14, 8, 10, 30}
		PrintTableHeader([]string{"TASK", "STATUS", "TIME", "NOTE"}, widths)
		for _, name := range names {
			res := r.Results[name]
			if res == nil {
				continue
			}
			status, note := "ok", res.Data.String(contracts.KeyDirection)
			if !res.Success {
				status, note = "failed", res.Error
			} else if res.Data.Bool(contracts.KeyFallbackUsed) {
				note += " (fallback)"
			}
			PrintTableRow([]string{name, status, res.Duration.Round(time.Millisecond).String(), truncate(note, 30)}, widths)
		}
	}

	if r.Error != nil {
		fmt.Println()
		PrintError(r.Error.Error())
		return
	}

	if !r.Persistable {
		PrintWarning("Contract failed validation and was not persisted")
		PrintList(r.ValidationErrors)
		return
	}

	c := r.Contract
	fmt.Println()
	PrintKeyValue("Recommendation", c.Recommendation, 14)
	PrintKeyValue("ER 1d/7d/30d", strings.Join([]string{
		formatOptional(c.ExpectedReturn.D1, "%"),
		formatOptional(c.ExpectedReturn.D7, "%"),
		formatOptional(c.ExpectedReturn.D30, "%"),
	}, " / "), 14)
	PrintKeyValue("DR 1d/7d/30d", strings.Join([]string{
		formatOptional(c.DownsideRisk.D1, "%"),
		formatOptional(c.DownsideRisk.D7, "%"),
		formatOptional(c.DownsideRisk.D30, "%"),
	}, " / "), 14)
	PrintKeyValue("Hit rate 7d", formatOptional(c.HitRate.D7, ""), 14)
	PrintKeyValue("EV 7d", formatOptional(c.EVScore7D, ""), 14)
	PrintKeyValue("Confidence", formatOptional(c.Confidence.Calibrated, "")+" ± "+formatOptional(c.Confidence.UncertaintyBand, "pp"), 14)
	PrintKeyValue("Regime", c.Risk.Regime, 14)
	PrintKeyValue("Data quality", formatOptional(c.Risk.DataQualityScore, ""), 14)
	PrintKeyValue("Conflict", formatOptional(c.Risk.ConflictScore, ""), 14)
	if c.Rationale != "" {
		fmt.Println()
		fmt.Printf("   %s\n", c.Rationale)
	}

	fmt.Println()
	if r.PersistError != nil {
		PrintWarning("Persistence failed: " + r.PersistError.Error())
		return
	}
	PrintSuccess("Analysis completed")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
