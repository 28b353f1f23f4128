package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var notesCmd = &cobra.Command{
	Use:   "notes <id> [content]",
	Short: "Read or replace a task's notes file",
	Long: `Without content, print the task's notes. With content (or with "-"
to read stdin), replace them. Notes are free-form markdown outside the event
log; they move with the task on archive.`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		runSidecar(cmd, args, svc.Notes, svc.WriteNotes)
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <id> [content]",
	Short: "Read or replace a task's plan file",
	Args:  cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		runSidecar(cmd, args, svc.Plan, svc.WritePlan)
	},
}

func runSidecar(cmd *cobra.Command, args []string,
	read func(string) (string, error),
	write func(ctx context.Context, id, content string) error) {

	if len(args) == 1 {
		content, err := read(args[0])
		if err != nil {
			fail(err)
		}
		emit(map[string]string{"content": content}, func() {
			fmt.Print(content)
		})
		return
	}

	content := args[1]
	if content == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fail(err)
		}
		content = string(data)
	}
	if err := write(cmd.Context(), args[0], content); err != nil {
		fail(err)
	}
	emit(map[string]string{"id": args[0]}, func() {
		fmt.Printf("Wrote %d byte(s)\n", len(content))
	})
}

func init() {
	rootCmd.AddCommand(notesCmd, planCmd)
}
