package commands

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/eoty-platform/eoty-db/cli/internal/config"
	"github.com/eoty-platform/eoty-db/cli/internal/ui"
	"github.com/eoty-platform/eoty-db/migrate/repairplan"
	"github.com/eoty-platform/eoty-db/migrations"
)

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Reconcile the ledger or run out-of-band repair scripts",
}

var repairYes bool

var repairPlanCmd = &cobra.Command{
	Use:   "plan <file>",
	Short: "Apply a ledger repair plan",
	Long: `Applies a plan of mark/unmark adjustments to the migration ledger
without running any migration action. Plan files look like:

    -- acknowledge schema applied by hand
    mark 0011_moderation batch 4
    unmark 0013_translations`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		content, err := afero.ReadFile(config.AppFs, args[0])
		if err != nil {
			return fmt.Errorf("failed to read plan: %w", err)
		}
		plan, err := repairplan.ParseString(args[0], string(content))
		if err != nil {
			return err
		}
		if len(plan.Ops) == 0 {
			ui.PrintInfo("Plan is empty; nothing to do")
			return nil
		}
		if !repairYes {
			confirmed := false
			prompt := &survey.Confirm{
				Message: fmt.Sprintf("Apply %d ledger adjustment(s)?", len(plan.Ops)),
			}
			if err := survey.AskOne(prompt, &confirmed); err != nil {
				return err
			}
			if !confirmed {
				ui.PrintInfo("Aborted")
				return nil
			}
		}
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()
		if err := s.runner.Repair(ctx, plan); err != nil {
			return mapRunError(err)
		}
		ui.PrintSuccess("Ledger reconciled (%d adjustment(s))", len(plan.Ops))
		return nil
	},
}

var repairRunCmd = &cobra.Command{
	Use:   "run <script>",
	Short: "Run a named repair script",
	Long: `Runs one of the out-of-band repair scripts. Scripts never touch the
ledger and are safe to run repeatedly.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		script := migrations.LookupRepairScript(args[0])
		if script == nil {
			return fmt.Errorf("unknown repair script %q (see `eotydb repair list`)", args[0])
		}
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()
		if err := s.runner.RunScript(ctx, script); err != nil {
			return mapRunError(err)
		}
		ui.PrintSuccess("Repair script %s completed", script.ID)
		return nil
	},
}

var repairListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available repair scripts",
	Run: func(cmd *cobra.Command, args []string) {
		var rows [][]string
		for _, u := range migrations.RepairScripts() {
			rows = append(rows, []string{u.ID, u.Notes})
		}
		ui.PrintTable([]string{"Script", "Description"}, rows)
	},
}

func init() {
	repairPlanCmd.Flags().BoolVar(&repairYes, "yes", false, "skip the confirmation prompt")
	repairCmd.AddCommand(repairPlanCmd)
	repairCmd.AddCommand(repairRunCmd)
	repairCmd.AddCommand(repairListCmd)
	rootCmd.AddCommand(repairCmd)
}
