package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var townCmd = &cobra.Command{
	Use:   "town",
	Short: "Bring the whole fleet up or down in one step",
}

var townUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Start the supervisor and report any Doctor findings",
	RunE: func(c *cobra.Command, args []string) error {
		issues := app.TownUp(supervisorInterval, supervisorAutoSync)
		fmt.Println("supervisor started")
		if len(issues) == 0 {
			fmt.Println(RenderOK())
			return nil
		}
		for _, issue := range issues {
			fmt.Println(RenderIssue(issue.Code, issue.Detail))
		}
		return nil
	},
}

var townDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Stop the supervisor and every running worker",
	RunE: func(c *cobra.Command, args []string) error {
		app.TownDown()
		fmt.Println("supervisor and all workers stopped")
		return nil
	},
}

var townStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize fleet counts",
	RunE: func(c *cobra.Command, args []string) error {
		fmt.Println(app.TownStatus())
		return nil
	},
}

func init() {
	townUpCmd.Flags().IntVar(&supervisorInterval, "interval-seconds", 30, "reconcile loop interval")
	townUpCmd.Flags().BoolVar(&supervisorAutoSync, "auto-refinery-sync", false, "sync every rig's merge queue each tick")
	townCmd.AddCommand(townUpCmd, townDownCmd, townStatusCmd)
}
