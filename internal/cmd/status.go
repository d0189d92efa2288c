package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tdat-dev/corengine/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize fleet counts",
	RunE: func(c *cobra.Command, args []string) error {
		summary := app.Dogs.Boot()
		fmt.Println(summary)

		running := 0
		for _, w := range app.State.Workers.Snapshot() {
			if w.Status == model.WorkerRunning {
				running++
			}
		}
		fmt.Printf("%d workers currently running\n", running)
		return nil
	},
}
