package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Analyze fleet health without mutating state",
	RunE: func(c *cobra.Command, args []string) error {
		issues := app.Doctor()
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

var fixCmd = &cobra.Command{
	Use:   "fix",
	Short: "Apply safe automatic repairs for Doctor's findings",
	RunE: func(c *cobra.Command, args []string) error {
		for _, summary := range app.Fix() {
			fmt.Println(summary)
		}
		return nil
	},
}
