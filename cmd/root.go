package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/graintrack/weighbridge-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "weighbridge-cli",
	Short: "Weighbridge transaction ingestion pipeline",
	Long:  "Ingests BUY/SELL weighing records from spreadsheet exports, resolves product-to-site identity through the mix registry, and stores them with per-day duplicate suppression.",
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
