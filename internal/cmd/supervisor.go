package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	supervisorInterval int
	supervisorAutoSync bool
)

var supervisorCmd = &cobra.Command{
	Use:   "supervisor",
	Short: "Start, stop and reconcile the background supervisor",
}

var supervisorStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the background reconciler loop",
	RunE: func(c *cobra.Command, args []string) error {
		app.StartSupervisor(supervisorInterval, supervisorAutoSync)
		fmt.Println("supervisor started")
		return nil
	},
}

var supervisorStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background reconciler loop",
	RunE: func(c *cobra.Command, args []string) error {
		app.StopSupervisor()
		fmt.Println("supervisor stopped")
		return nil
	},
}

var supervisorReconcileCmd = &cobra.Command{
	Use:   "reconcile [rig-id]",
	Short: "Run one reconciliation pass on demand",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		rigID := ""
		if len(args) == 1 {
			rigID = args[0]
		}
		decisions := app.ReconcileQueue(rigID)
		for _, d := range decisions {
			fmt.Printf("%s hook=%s reason=%s\n", d.Kind, d.HookID, d.Reason)
		}
		fmt.Printf("%d decision(s) applied\n", len(decisions))
		return nil
	},
}

func init() {
	supervisorStartCmd.Flags().IntVar(&supervisorInterval, "interval-seconds", 30, "reconcile loop interval")
	supervisorStartCmd.Flags().BoolVar(&supervisorAutoSync, "auto-refinery-sync", false, "sync every rig's merge queue each tick")
	supervisorCmd.AddCommand(supervisorStartCmd, supervisorStopCmd, supervisorReconcileCmd)
}
