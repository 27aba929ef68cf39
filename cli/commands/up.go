package commands

import (
	"github.com/spf13/cobra"

	"github.com/eoty-platform/eoty-db/cli/internal/ui"
)

var upTarget string

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	Long: `Applies pending migrations in order, up to and including --target,
or to head when no target is given. Stops at the first failing
migration; its id is reported on stderr.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		spinner := ui.Spinner("Applying migrations...")
		summary, err := s.runner.Up(ctx, upTarget)
		if err != nil {
			spinner.Fail("Migration failed")
			return mapRunError(err)
		}
		if len(summary.Applied) == 0 {
			spinner.Info("Nothing to apply; database is up to date")
			return nil
		}
		spinner.Success("Migrations applied")
		ui.PrintList(summary.Applied)
		ui.PrintSuccess("Applied %d migration(s) in batch %d", len(summary.Applied), summary.Batch)
		return nil
	},
}

func init() {
	upCmd.Flags().StringVar(&upTarget, "target", "", "stop after this migration id")
	rootCmd.AddCommand(upCmd)
}
