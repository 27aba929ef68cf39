package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eoty-platform/eoty-db/cli/internal/ui"
)

var statusNotes bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied, pending, and orphan migrations",
	Long: `Shows the ordered diff between the migration ledger and the registry.

Exit codes: 0 when the database is at head, 1 when pending migrations
exist, 2 when the ledger has orphan entries, 4 on I/O error.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.close()

		st, err := s.runner.Status(ctx)
		if err != nil {
			return mapRunError(err)
		}

		var rows [][]string
		for _, e := range st.Applied {
			rows = append(rows, []string{e.ID, "applied",
				fmt.Sprintf("%d", e.Batch), e.AppliedAt.Format("2006-01-02 15:04:05")})
		}
		for _, id := range st.Pending {
			rows = append(rows, []string{id, "pending", "", ""})
		}
		for _, e := range st.Orphans {
			rows = append(rows, []string{e.ID, "orphan",
				fmt.Sprintf("%d", e.Batch), e.AppliedAt.Format("2006-01-02 15:04:05")})
		}
		ui.PrintTable([]string{"Migration", "State", "Batch", "Applied at"}, rows)

		if statusNotes {
			for _, id := range st.Pending {
				if u := s.runner.Registry().Lookup(id); u != nil && u.Notes != "" {
					ui.PrintMarkdown(fmt.Sprintf("**%s** — %s", u.ID, u.Notes))
				}
			}
		}

		switch {
		case len(st.Orphans) > 0:
			ui.PrintWarning("%d orphan ledger entr%s — run `eotydb repair plan` to reconcile",
				len(st.Orphans), plural(len(st.Orphans), "y", "ies"))
			return exitWith(ExitOrphans, "")
		case len(st.Pending) > 0:
			ui.PrintInfo("%d pending migration%s", len(st.Pending), plural(len(st.Pending), "", "s"))
			return exitWith(ExitPending, "")
		default:
			ui.PrintSuccess("Database is at head")
			return nil
		}
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusNotes, "notes", false, "render notes for pending migrations")
	rootCmd.AddCommand(statusCmd)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
