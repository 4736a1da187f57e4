// Package cli implements the BlockRush command-line interface using Cobra.
package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/blockrush/blockrush/internal/daemon"
	"github.com/blockrush/blockrush/internal/logger"
)

var (
	configPath string
	envFile    string

	cfg daemon.Config
	log *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "blockrush",
	Short: "BlockRush gamification engine",
	Long: `BlockRush runs the gamification layer of the BlockRush puzzle game:
streaks, season pass, challenges, achievements and the scheduled jobs
that rotate challenges, roll seasons over and send streak reminders.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) {
		if log != nil {
			log.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $BLOCKRUSH_HOME/config.toml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Dotenv file loaded before the config")
}

// setup loads .env, then the config, then builds the logger.
func setup(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	if configPath == "" {
		configPath = daemon.ConfigPath()
	}
	var err error
	if cfg, err = daemon.LoadConfigFile(configPath); err != nil {
		return err
	}

	if log, err = logger.New(cfg.Logging.Mode, cfg.Logging.Level); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	return nil
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
