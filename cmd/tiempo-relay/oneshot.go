package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/Guizzs26/tiempo-relay/internal/db"
	"github.com/Guizzs26/tiempo-relay/internal/models"
	"github.com/Guizzs26/tiempo-relay/internal/service"
	"github.com/Guizzs26/tiempo-relay/internal/timesync"
)

const oneShotTimeout = 30 * time.Second

var fetchCmd = &cobra.Command{
	Use:   "fetch HH:MM:SS",
	Short: "Print today's source rows at a time of day",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hora, err := timesync.ValidateClock(args[0])
		if err != nil {
			return err
		}

		aligner, err := newAligner()
		if err != nil {
			return err
		}
		source, err := newSource()
		if err != nil {
			return err
		}
		defer source.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), oneShotTimeout)
		defer cancel()

		monitor := service.NewMonitor(service.MonitorParams{
			Aligner: aligner,
			Source:  source,
			State:   models.NewStateStore(aligner.CurrentTableName()),
			Logger:  logger,
		})
		defer monitor.Close()

		res, err := monitor.ManualFetch(ctx, hora)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), res)
	},
}

var wellCmd = &cobra.Command{
	Use:   "well",
	Short: "Well data maintenance",
}

var wellRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Copy the source well row into the destination well table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), oneShotTimeout)
		defer cancel()

		aligner, err := newAligner()
		if err != nil {
			return err
		}
		source, err := newSource()
		if err != nil {
			return err
		}
		defer source.Close()

		dest, err := db.NewDestinationRepository(ctx, cfg.DestinationURL, cfg.DestinationTable, cfg.WellTable, logger)
		if err != nil {
			return err
		}
		defer dest.Close()

		monitor := service.NewMonitor(service.MonitorParams{
			Aligner: aligner,
			Source:  source,
			Wells:   dest,
			State:   models.NewStateStore(aligner.CurrentTableName()),
			Logger:  logger,
		})
		defer monitor.Close()

		if !monitor.RefreshWellData(ctx) {
			return errors.New("well data was not updated, see log for details")
		}
		return nil
	},
}

var tzCmd = &cobra.Command{
	Use:   "tz",
	Short: "Print the configured zone, local time and current source table",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		aligner, err := newAligner()
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), aligner.Info())
	},
}

func init() {
	wellCmd.AddCommand(wellRefreshCmd)
}
