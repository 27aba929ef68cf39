package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/eoty-platform/eoty-db/cli/internal/ui"
	"github.com/eoty-platform/eoty-db/cli/internal/watch"
	"github.com/eoty-platform/eoty-db/seed"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-apply migrations when SQL files change (development only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		if s.cfg.Environment == seed.Production {
			return fmt.Errorf("watch is a development tool; refusing to run in production")
		}
		if s.cfg.MigrationsDir == "" {
			return fmt.Errorf("watch requires migrations_dir to be configured")
		}

		w, err := watch.NewWatcher(s.cfg.MigrationsDir, func() error {
			// A changed directory may contain new units, so the registry and
			// runner are rebuilt per run.
			run, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer run.close()
			summary, err := run.runner.Up(ctx, "")
			if err != nil {
				ui.PrintError("%v", err)
				return nil // keep watching
			}
			if len(summary.Applied) > 0 {
				ui.PrintSuccess("Applied %d migration(s)", len(summary.Applied))
			}
			return nil
		})
		if err != nil {
			return err
		}
		defer w.Stop()
		if err := w.Start(); err != nil {
			return err
		}

		ui.PrintInfo("Watching %s for changes; Ctrl-C to stop", s.cfg.MigrationsDir)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sig:
		case <-ctx.Done():
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
