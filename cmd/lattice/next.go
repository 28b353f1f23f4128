package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var nextPool []string

var nextCmd = &cobra.Command{
	Use:   "next",
	Short: "Show the task you should pick up, without claiming it",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()
		task, err := svc.Next(meta.Actor, nextPool)
		if err != nil {
			fail(err)
		}
		emit(task, func() {
			fmt.Printf("%s  %-8s %s\n", displayID(task), task.Priority, task.Title)
		})
	},
}

var claimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Atomically claim the next task: assign it and move it to in_progress",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()
		task, err := svc.Claim(cmd.Context(), nextPool, meta)
		if err != nil {
			fail(err)
		}
		emit(task, func() {
			fmt.Printf("Claimed %s: %s [%s]\n", displayID(task), task.Title, task.Status)
		})
	},
}

func init() {
	nextCmd.Flags().StringSliceVar(&nextPool, "pool", nil, "statuses to draw from (default backlog,planned)")
	claimCmd.Flags().StringSliceVar(&nextPool, "pool", nil, "statuses to draw from (default backlog,planned)")
	rootCmd.AddCommand(nextCmd, claimCmd)
}
