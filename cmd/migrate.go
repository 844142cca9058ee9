package cmd

import (
	"github.com/spf13/cobra"

	"teacherdev_backend/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, log, err := loadConfig(cmd, true)
		if err != nil {
			return err
		}
		defer log.Sync()

		db, err := database.InitDB(&cfg.Database, false, log)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
		return database.Migrate(db, log)
	},
}
