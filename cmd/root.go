package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gioe/aiq/internal/config"
	"github.com/gioe/aiq/internal/logging"
	"github.com/gioe/aiq/internal/store"
)

// Process exit codes. Run statuses map to 0-2 through pipeline.Status.
const (
	ExitOK      = 0
	ExitConfig  = 3
	ExitFailure = 4
)

// ExitError carries the process exit code for a failed command.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode returns the process exit code for an Execute error.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ExitFailure
}

func configError(err error) error {
	return &ExitError{Code: ExitConfig, Err: err}
}

var rootCmd = &cobra.Command{
	Use:           "aiqgen",
	Short:         "Generate, judge and store cognitive test questions",
	Long:          "aiqgen drives LLM providers to generate questions, scores them with a judge model, rejects duplicates and stores the rest.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "Path to SQLite database file (overrides AIQ_DB env var)")
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (overrides AIQ_CONFIG env var)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return configError(err)
	})

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(inventoryCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and environment, then applies the
// persistent flags. It does not validate.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, configError(err)
	}
	if v, _ := cmd.Flags().GetString("db"); v != "" {
		cfg.DB = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as the default.
func newLogger(cfg config.Config) (*slog.Logger, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, configError(err)
	}
	slog.SetDefault(log)
	return log, nil
}

// openStore opens the database named by cfg.DB, or the default XDG path.
func openStore(cfg config.Config) (*store.Store, error) {
	path := cfg.DB
	if path != "" {
		if err := store.EnsureDir(path); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	} else {
		var err error
		if path, err = store.DefaultDBPath(); err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	}
	s, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return s, nil
}
