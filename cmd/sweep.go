package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"teacherdev_backend/internal/app"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Evaluate pending submitted attempts once and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, log, err := loadConfig(cmd, true)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		application, err := app.NewApp(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer application.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		if limit <= 0 {
			limit = application.SweepBatch()
		}
		summary, err := application.Evaluation().ProcessPending(ctx, limit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d evaluated=%d retried=%d failed=%d skipped=%d\n",
			summary.Scanned, summary.Evaluated, summary.Retried, summary.Failed, summary.Skipped)
		return nil
	},
}

func init() {
	sweepCmd.Flags().Int("limit", 0, "Maximum attempts to process (defaults to sweep.batch_size)")
}
