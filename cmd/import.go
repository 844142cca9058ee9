package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"teacherdev_backend/internal/app"
	"teacherdev_backend/internal/service"
	"teacherdev_backend/internal/util"
)

var importCmd = &cobra.Command{
	Use:   "import-questions <assessment-id> <file.yaml>",
	Short: "Bulk import questions from a YAML file into an assessment",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		assessmentID, err := util.ParseID(args[0])
		if err != nil {
			return err
		}
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		cfg, _, log, err := loadConfig(cmd, true)
		if err != nil {
			return err
		}
		defer log.Sync()

		application, err := app.NewApp(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer application.Close()

		qs, err := application.Catalog().ImportYAML(cmd.Context(), assessmentID, f)
		if err != nil {
			var qerr *service.QuestionValidationError
			if errors.As(err, &qerr) && qerr.Index >= 0 {
				return fmt.Errorf("%s: entry %d: %w", args[1], qerr.Index+1, qerr.Err)
			}
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d questions into assessment %d\n", len(qs), assessmentID)
		return nil
	},
}
