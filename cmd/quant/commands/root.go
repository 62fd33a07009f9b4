package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "Aegis Signal - 종목 분석 시그널 엔진",
	Long: `Aegis Signal Unified CLI

여러 데이터 태스크를 병렬로 실행하고, LLM 합성 결과를
검증된 signal contract(v1)로 변환합니다.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant analyze AAPL
  go run ./cmd/quant analyze AAPL --tasks market,news --json
  go run ./cmd/quant api
  go run ./cmd/quant scheduler start
  go run ./cmd/quant tasks`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "env file (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logs)")
}
