package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"teacherdev_backend/internal/config"
	"teacherdev_backend/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "teacherdev",
	Short: "Teacher competency assessment service",
	Long:  "Teacher development backend: runs competency assessments, scores them and maps gaps to micro-PD modules.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "configs", "Directory containing config.yaml")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(importCmd)
}

// loadConfig reads the config directory named by --config and initialises
// the process logger. CLI jobs log to the console only.
func loadConfig(cmd *cobra.Command, consoleOnly bool) (*config.Config, string, *zap.Logger, error) {
	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(dir)
	if err != nil {
		return nil, "", nil, err
	}
	log := logger.InitLogger(cfg, logger.Options{ConsoleOnly: consoleOnly})
	return cfg, dir, log, nil
}
