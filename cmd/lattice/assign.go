package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	assignTo    string
	assignClear bool
)

var assignCmd = &cobra.Command{
	Use:   "assign <id>",
	Short: "Assign or unassign a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()

		var assignee *string
		switch {
		case assignClear:
		case assignTo != "":
			assignee = &assignTo
		default:
			// assign to self
			assignee = &meta.Actor
		}

		task, err := svc.Assign(cmd.Context(), args[0], assignee, meta)
		if err != nil {
			fail(err)
		}
		emit(task, func() {
			if task.AssignedTo == nil {
				fmt.Printf("Unassigned %s\n", displayID(task))
			} else {
				fmt.Printf("Assigned %s to %s\n", displayID(task), *task.AssignedTo)
			}
		})
	},
}

func init() {
	assignCmd.Flags().StringVar(&assignTo, "to", "", "assignee (defaults to the acting identity)")
	assignCmd.Flags().BoolVar(&assignClear, "clear", false, "remove the assignment")
	rootCmd.AddCommand(assignCmd)
}
