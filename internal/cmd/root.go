// Package cmd is the CLI surface over the Command Facade: a package-level
// rootCmd, one file per sub-command group, state resolved once in
// PersistentPreRunE.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tdat-dev/corengine/internal/corestate"
	"github.com/tdat-dev/corengine/internal/facade"
)

var (
	stateRoot string
	app       *facade.Facade
)

var rootCmd = &cobra.Command{
	Use:   "core",
	Short: "Run and inspect a corengine fleet",
	PersistentPreRunE: func(c *cobra.Command, args []string) error {
		state, err := corestate.Open(stateRoot)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		app = facade.New(state)
		return nil
	},
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd.PersistentFlags().StringVar(&stateRoot, "state-dir", "", "persistent store root (default: $HOME/.corengine)")
	rootCmd.AddCommand(rigCmd, workerCmd, supervisorCmd, doctorCmd, statusCmd, fixCmd, townCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
