package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/eoty-platform/eoty-db/cli/internal/ui"
	"github.com/eoty-platform/eoty-db/seed"
)

var seedForce bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed baseline data",
	Long: `Runs the idempotent seed units: roles, permissions, default users,
and onboarding content. Destructive units are refused when the
environment is production (exit code 3) unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		seeder := seed.New(s.db, seed.Units())
		err = seeder.Run(ctx, seed.Options{
			Environment: s.cfg.Environment,
			Force:       seedForce,
		})
		if err != nil {
			if errors.Is(err, seed.ErrProductionRefused) {
				return exitWith(ExitSeedRefused,
					"%v (pass --force to seed production anyway)", err)
			}
			return mapRunError(err)
		}
		ui.PrintSuccess("Seeded %d unit(s)", len(seeder.Names()))
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "run destructive seeds even in production")
	rootCmd.AddCommand(seedCmd)
}
