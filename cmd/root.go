package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/trip-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "trip-cli",
	Short: "Budget-bounded travel itinerary planner",
	Long:  "Extracts trip preferences from a free-text request, estimates costs, proposes a day-by-day itinerary and re-optimizes it until it fits the budget.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyFlagOverrides(c, cmd.Flags())
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		zap.L().Debug("config loaded",
			zap.String("store_driver", cfg.Store.Driver),
			zap.Bool("llm", cfg.Anthropic.Key != ""),
			zap.Bool("live_prices", cfg.Booking.Key != ""),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// applyFlagOverrides lets explicitly set persistent flags win over file and
// environment configuration.
func applyFlagOverrides(c *config.Config, flags *pflag.FlagSet) {
	if f := flags.Lookup("log-level"); f != nil && f.Changed {
		c.Log.Level = f.Value.String()
	}
	if f := flags.Lookup("store"); f != nil && f.Changed {
		c.Store.Driver = f.Value.String()
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("store", "", "override store.driver (sqlite, postgres)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
