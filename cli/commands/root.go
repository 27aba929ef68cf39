// Package commands implements the eotydb CLI.
package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eoty-platform/eoty-db/cli/internal/ui"
	"github.com/eoty-platform/eoty-db/cli/internal/update"
	"github.com/eoty-platform/eoty-db/cli/internal/version"
	"github.com/eoty-platform/eoty-db/internal/debug"
)

// Exit codes the CLI commits to. Scripts depend on these.
const (
	ExitOK          = 0
	ExitPending     = 1 // status: pending migrations exist
	ExitOrphans     = 2 // status: ledger has orphan entries
	ExitSeedRefused = 3 // seed: destructive seed refused in production
	ExitIOError     = 4 // could not reach or query the database
)

// exitError carries a specific exit code out of a command.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func exitWith(code int, format string, args ...any) error {
	return &exitError{code: code, msg: fmt.Sprintf(format, args...)}
}

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "eotydb",
	Short: "EOTY platform database migrations and seeding",
	Long: `eotydb manages the EOTY platform's database schema: it applies and
reverts migrations, reconciles the migration ledger, and seeds baseline
data. Configuration comes from .eotydb.yaml, EOTYDB_* environment
variables, and .env files.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug.Init(debugFlag)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	versionCmd.Flags().BoolVar(&versionCheck, "check", false, "check whether a newer release exists")
	rootCmd.AddCommand(versionCmd)
}

var versionCheck bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version.Get().FullString())
		if versionCheck {
			return update.Check(version.Version)
		}
		return nil
	},
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.msg != "" {
			ui.PrintError("%s", ee.msg)
		}
		return ee.code
	}
	ui.PrintError("%v", err)
	return 1
}
