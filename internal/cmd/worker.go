package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	spawnAgentType string
	spawnPrompt    string
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Spawn, stop and inspect workers",
}

var workerSpawnCmd = &cobra.Command{
	Use:   "spawn <crew-id>",
	Short: "Spawn a worker against a crew",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		w, err := app.SpawnWorker(context.Background(), args[0], spawnAgentType, spawnPrompt, "", "")
		if err != nil {
			return err
		}
		fmt.Printf("spawned worker %s (pid %d)\n", w.ID, w.PID)
		return nil
	},
}

var workerStopCmd = &cobra.Command{
	Use:   "stop <worker-id>",
	Short: "Stop a running worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return app.StopWorker(args[0])
	},
}

var workerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workers",
	RunE: func(c *cobra.Command, args []string) error {
		table := NewTable(
			Column{Name: "ID", Width: 36},
			Column{Name: "CREW", Width: 36},
			Column{Name: "TYPE", Width: 8},
			Column{Name: "STATUS", Width: 10},
		)
		for _, w := range app.ListWorkers("") {
			table.AddRow(w.ID, w.CrewID, string(w.Type), string(w.Status))
		}
		fmt.Print(table.Render())
		return nil
	},
}

func init() {
	workerSpawnCmd.Flags().StringVar(&spawnAgentType, "agent", "", "agent type (claude, codex, ...)")
	workerSpawnCmd.Flags().StringVar(&spawnPrompt, "prompt", "", "initial prompt")
	workerCmd.AddCommand(workerSpawnCmd, workerStopCmd, workerListCmd)
}
