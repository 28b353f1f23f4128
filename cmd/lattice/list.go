package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticehq/lattice/internal/service"
)

var (
	listStatus   string
	listType     string
	listAssignee string
	listTag      string
	listArchived bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks in priority order",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		tasks, err := svc.List(service.ListFilter{
			Status:     listStatus,
			Type:       listType,
			AssignedTo: listAssignee,
			Tag:        listTag,
			Archived:   listArchived,
		})
		if err != nil {
			fail(err)
		}

		emit(tasks, func() {
			if len(tasks) == 0 {
				fmt.Println("No tasks.")
				return
			}
			for _, t := range tasks {
				label := t.ID
				if t.ShortID != "" {
					label = t.ShortID
				}
				assignee := ""
				if t.AssignedTo != nil {
					assignee = "  @" + *t.AssignedTo
				}
				fmt.Printf("%-10s %-12s %-8s %s%s\n", label, t.Status, t.Priority, t.Title, assignee)
			}
		})
	},
}

func init() {
	listCmd.Flags().StringVarP(&listStatus, "status", "s", "", "filter by status")
	listCmd.Flags().StringVarP(&listType, "type", "t", "", "filter by type")
	listCmd.Flags().StringVar(&listAssignee, "assignee", "", "filter by assignee")
	listCmd.Flags().StringVar(&listTag, "tag", "", "filter by tag")
	listCmd.Flags().BoolVar(&listArchived, "archived", false, "list archived tasks instead")
	rootCmd.AddCommand(listCmd)
}
