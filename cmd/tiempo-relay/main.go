package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Guizzs26/tiempo-relay/internal/config"
	"github.com/Guizzs26/tiempo-relay/internal/db"
	"github.com/Guizzs26/tiempo-relay/internal/models"
	"github.com/Guizzs26/tiempo-relay/internal/timesync"
	"github.com/Guizzs26/tiempo-relay/pkg/encoding"
	"github.com/Guizzs26/tiempo-relay/pkg/infra"
)

var (
	configFile string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "tiempo-relay",
	Short:         "Relay 5-second drilling records from the daily source tables to the realtime store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if configFile != "" {
			if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
				return err
			}
		}

		cfg = config.Load()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger = infra.SetupLogger(cfg)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		infra.CloseLogger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
	rootCmd.AddCommand(serveCmd, fetchCmd, wellCmd, tzCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		if errors.Is(err, models.ErrMalformedTime) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newAligner() (*timesync.Aligner, error) {
	offset, err := timesync.ParseOffset(cfg.TimezoneOffset)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE_OFFSET: %w", err)
	}
	return timesync.NewAligner(nil, offset, cfg.TimezoneName, cfg.SourceTablePrefix), nil
}

func newSource() (*db.SourceRepository, error) {
	return db.NewSourceRepository(
		cfg.SourceDriver,
		cfg.SourceDSN,
		cfg.WellTable,
		encoding.NewTextDecoder(cfg.SourceCharset),
		logger,
	)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
