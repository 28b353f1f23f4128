package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a task, its comments, and its evidence",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		task, err := svc.Get(args[0])
		if err != nil {
			fail(err)
		}
		comments, err := svc.Comments(args[0])
		if err != nil {
			fail(err)
		}

		emit(map[string]any{"task": task, "comments": comments}, func() {
			label := task.ID
			if task.ShortID != "" {
				label = fmt.Sprintf("%s (%s)", task.ShortID, task.ID)
			}
			fmt.Printf("%s: %s\n", label, task.Title)
			fmt.Printf("  status: %s", task.Status)
			if task.Archived {
				fmt.Print("  [archived]")
			}
			fmt.Println()
			fmt.Printf("  priority: %s  urgency: %s\n", orDash(string(task.Priority)), orDash(string(task.Urgency)))
			if task.AssignedTo != nil {
				fmt.Printf("  assigned: %s\n", *task.AssignedTo)
			}
			if len(task.Tags) > 0 {
				fmt.Printf("  tags: %s\n", strings.Join(task.Tags, ", "))
			}
			if task.Description != "" {
				fmt.Printf("\n%s\n", task.Description)
			}
			for _, rel := range task.RelationshipsOut {
				fmt.Printf("  %s -> %s\n", rel.Type, rel.TargetID)
			}
			for _, ev := range task.EvidenceRefs {
				fmt.Printf("  evidence: %s %s (%s)\n", ev.SourceType, ev.SourceID, orDash(ev.Role))
			}
			if len(comments) > 0 {
				fmt.Println()
				for _, c := range comments {
					role := ""
					if c.Role != "" {
						role = fmt.Sprintf(" [%s]", c.Role)
					}
					fmt.Printf("  %s%s %s: %s\n", c.Author, role, c.CreatedAt.Time.Format("2006-01-02 15:04"), c.Body)
				}
			}
		})
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	rootCmd.AddCommand(showCmd)
}
