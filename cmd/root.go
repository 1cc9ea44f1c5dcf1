package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hearing-sync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "hearing-sync",
	Short: "Congressional hearing discovery and sync",
	Long:  "Discovers Senate committee hearings from the Congress.gov API and committee websites, keeps one unified record per hearing, and deduplicates across sources.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
