package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ktg0215/Management-sub000/internal/config"
	"github.com/ktg0215/Management-sub000/internal/shared/logging"
)

var (
	cfgFile string
	cfg     *config.Config
	logFile *os.File
)

func main() {
	// Attempt to load variables from .env so local runs honour configuration tweaks.
	if err := godotenv.Overload(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, ".env load warning: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:          "storeops-realtime",
		Short:        "Real-time update server for store operations",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
			return setupLogging(cfg.Logging)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logFile != nil {
				_ = logFile.Close()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", os.Getenv("REALTIME_CONFIG"), "config file path (or set REALTIME_CONFIG)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(logCfg config.LoggingConfig) error {
	file, err := logging.OpenDaily(logCfg.Directory, time.Now())
	if err != nil {
		return fmt.Errorf("logging setup: %w", err)
	}
	logFile = file

	writer := io.MultiWriter(os.Stdout, file)
	slog.SetDefault(logging.New(writer, logging.Config{
		Level:     logCfg.Level,
		Format:    logCfg.Format,
		AddSource: true,
	}))
	log.SetOutput(writer)
	log.SetFlags(0)
	log.SetPrefix("")

	slog.Info("logging initialized", slog.String("directory", logCfg.Directory), slog.String("level", logCfg.Level), slog.String("format", logCfg.Format))
	return nil
}
