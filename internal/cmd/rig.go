package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rigCmd = &cobra.Command{
	Use:   "rig",
	Short: "Manage registered rigs",
}

var rigAddCmd = &cobra.Command{
	Use:   "add <name> <path>",
	Short: "Register a git repository as a rig",
	Args:  cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		r, err := app.Rigs.Register(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Printf("registered rig %s (%s) at %s\n", r.Name, r.ID, r.Path)
		return nil
	},
}

var rigListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered rigs",
	RunE: func(c *cobra.Command, args []string) error {
		table := NewTable(
			Column{Name: "ID", Width: 36},
			Column{Name: "NAME", Width: 20},
			Column{Name: "PATH", Width: 40},
		)
		for _, r := range app.State.Rigs.Snapshot() {
			table.AddRow(r.ID, r.Name, r.Path)
		}
		fmt.Print(table.Render())
		return nil
	},
}

func init() {
	rigCmd.AddCommand(rigAddCmd, rigListCmd)
}
