package commands

import (
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/eoty-platform/eoty-db/cli/internal/ui"
	"github.com/eoty-platform/eoty-db/migrate/runner"
)

var (
	downTarget string
	downYes    bool
)

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert applied migrations",
	Long: `Reverts applied migrations in reverse order, down to but not
including --target. Reverting is destructive; the command asks for
confirmation unless --yes is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if downTarget == "" {
			return fmt.Errorf("down requires --target")
		}
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		if !downYes {
			confirmed := false
			prompt := &survey.Confirm{
				Message: fmt.Sprintf("Revert all migrations after %s?", downTarget),
			}
			if err := survey.AskOne(prompt, &confirmed); err != nil {
				return err
			}
			if !confirmed {
				ui.PrintInfo("Aborted")
				return nil
			}
		}

		summary, err := s.runner.Down(ctx, downTarget)
		if err != nil {
			var irr *runner.IrreversibleError
			if errors.As(err, &irr) {
				return exitWith(1, "migration %s declares no revert action", irr.UnitID)
			}
			return mapRunError(err)
		}
		if len(summary.Reverted) == 0 {
			ui.PrintInfo("Nothing to revert")
			return nil
		}
		ui.PrintList(summary.Reverted)
		ui.PrintSuccess("Reverted %d migration(s)", len(summary.Reverted))
		return nil
	},
}

func init() {
	downCmd.Flags().StringVar(&downTarget, "target", "", "revert down to, but not including, this id")
	downCmd.Flags().BoolVar(&downYes, "yes", false, "skip the confirmation prompt")
	rootCmd.AddCommand(downCmd)
}
