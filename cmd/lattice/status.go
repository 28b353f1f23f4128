package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	statusForce  bool
	statusReason string
)

var statusCmd = &cobra.Command{
	Use:   "status <id> <target>",
	Short: "Move a task through the workflow",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()

		res, err := svc.ChangeStatus(cmd.Context(), args[0], args[1], statusForce, statusReason, meta)
		if err != nil {
			fail(err)
		}
		emit(res, func() {
			fmt.Printf("%s -> %s\n", displayID(res.Task), res.Task.Status)
			if res.Warning != "" {
				fmt.Printf("Warning: %s\n", res.Warning)
			}
		})
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusForce, "force", false, "bypass workflow checks (requires --reason)")
	statusCmd.Flags().StringVar(&statusReason, "reason", "", "why the transition is forced")
	rootCmd.AddCommand(statusCmd)
}
