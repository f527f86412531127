package cmd

import (
	"fmt"

	"TradeGP/internal/di"
	"TradeGP/pkg/config"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trainer",
	Short: "Offline training tools for the gaussian process service",
	Long: `Trainer fits and maintains the per-instrument GP model bundles the
prediction service loads.

It provides tools for:
  - Training every {instrument}_{direction}_training.json in a data directory
  - Training a single instrument/direction
  - Auditing whether the trade records are ready for training
  - Exporting trade records into per-key training files
  - Collecting reported outcomes from Kafka into ClickHouse`,
	SilenceUsage: true,
}

var (
	cfgPath   string
	modelsDir string
	dataDir   string
	logLevel  string
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&modelsDir, "models-dir", "", "override models.dir")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "override training.data_dir")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level")
}

// loadConfig reads the config file with environment and flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadWithEnv(cfgPath)
	if err != nil {
		return nil, err
	}
	if modelsDir != "" {
		cfg.Models.Dir = modelsDir
	}
	if dataDir != "" {
		cfg.Training.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	// stdout carries command output
	if cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}
	return cfg, nil
}

func loadToolkit() (*di.Toolkit, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	tk, err := di.InitializeToolkit(cfg)
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	return tk, nil
}
