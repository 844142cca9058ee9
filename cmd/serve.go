package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"teacherdev_backend/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the background evaluation sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().Bool("migrate", false, "Run database migrations on startup even in release mode")
}

func runServe(cmd *cobra.Command) error {
	cfg, dir, log, err := loadConfig(cmd, false)
	if err != nil {
		return err
	}
	defer log.Sync()
	if cmd.Flags().Lookup("migrate") != nil {
		cfg.ForceMigrate, _ = cmd.Flags().GetBool("migrate")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	application.ConfigDir = dir
	return application.Run(ctx)
}
