package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var commentRole string

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Manage task comments",
}

var commentAddCmd = &cobra.Command{
	Use:   "add <id> <body>",
	Short: "Add a comment; --role marks it as completion evidence",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()
		task, commentID, err := svc.CommentAdd(cmd.Context(), args[0], args[1], commentRole, meta)
		if err != nil {
			fail(err)
		}
		emit(map[string]any{"task": task, "comment_id": commentID}, func() {
			fmt.Printf("Added comment %s to %s\n", commentID, displayID(task))
		})
	},
}

var commentEditCmd = &cobra.Command{
	Use:   "edit <id> <comment-id> <body>",
	Short: "Edit a comment's body and role",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()
		task, err := svc.CommentEdit(cmd.Context(), args[0], args[1], args[2], commentRole, meta)
		if err != nil {
			fail(err)
		}
		emit(task, func() {
			fmt.Printf("Edited comment %s on %s\n", args[1], displayID(task))
		})
	},
}

var commentDeleteCmd = &cobra.Command{
	Use:   "delete <id> <comment-id>",
	Short: "Delete a comment (its evidence no longer counts)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()
		task, err := svc.CommentDelete(cmd.Context(), args[0], args[1], meta)
		if err != nil {
			fail(err)
		}
		emit(task, func() {
			fmt.Printf("Deleted comment %s from %s\n", args[1], displayID(task))
		})
	},
}

func init() {
	commentAddCmd.Flags().StringVar(&commentRole, "role", "", "evidence role, e.g. review")
	commentEditCmd.Flags().StringVar(&commentRole, "role", "", "evidence role, e.g. review")
	commentCmd.AddCommand(commentAddCmd, commentEditCmd, commentDeleteCmd)
	rootCmd.AddCommand(commentCmd)
}
