package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var archiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a task (read-only, moved to the archive subtree)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()
		task, err := svc.Archive(cmd.Context(), args[0], meta)
		if err != nil {
			fail(err)
		}
		emit(task, func() {
			fmt.Printf("Archived %s\n", displayID(task))
		})
	},
}

var unarchiveCmd = &cobra.Command{
	Use:   "unarchive <id>",
	Short: "Restore an archived task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()
		task, err := svc.Unarchive(cmd.Context(), args[0], meta)
		if err != nil {
			fail(err)
		}
		emit(task, func() {
			fmt.Printf("Restored %s [%s]\n", displayID(task), task.Status)
		})
	},
}

func init() {
	rootCmd.AddCommand(archiveCmd, unarchiveCmd)
}
