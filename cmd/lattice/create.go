package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticehq/lattice/internal/service"
	"github.com/latticehq/lattice/internal/types"
)

var (
	createDescription  string
	createType         string
	createPriority     string
	createUrgency      string
	createComplexity   string
	createAssignee     string
	createTags         []string
	createCustomFields string
	createID           string
)

var createCmd = &cobra.Command{
	Use:   "create <title>",
	Short: "Create a task",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()

		req := service.CreateRequest{
			ID:          createID,
			Title:       args[0],
			Description: createDescription,
			Type:        createType,
			Priority:    types.Priority(createPriority),
			Urgency:     types.Urgency(createUrgency),
			Complexity:  types.Complexity(createComplexity),
			Tags:        createTags,
		}
		if createAssignee != "" {
			req.AssignedTo = &createAssignee
		}
		if createCustomFields != "" {
			if err := json.Unmarshal([]byte(createCustomFields), &req.CustomFields); err != nil {
				fail(types.Errorf(types.CodeInvalidInput, "--fields must be a JSON object: %v", err))
			}
		}

		task, err := svc.Create(cmd.Context(), req, meta)
		if err != nil {
			fail(err)
		}
		emit(task, func() {
			label := task.ID
			if task.ShortID != "" {
				label = fmt.Sprintf("%s (%s)", task.ShortID, task.ID)
			}
			fmt.Printf("Created %s: %s [%s]\n", label, task.Title, task.Status)
		})
	},
}

func init() {
	createCmd.Flags().StringVarP(&createDescription, "description", "d", "", "task description")
	createCmd.Flags().StringVarP(&createType, "type", "t", "", "task type (task, bug, feature, chore, epic)")
	createCmd.Flags().StringVarP(&createPriority, "priority", "p", "", "priority (critical, high, medium, low)")
	createCmd.Flags().StringVar(&createUrgency, "urgency", "", "urgency (immediate, high, normal, low)")
	createCmd.Flags().StringVar(&createComplexity, "complexity", "", "complexity (low, medium, high)")
	createCmd.Flags().StringVar(&createAssignee, "assign", "", "initial assignee")
	createCmd.Flags().StringSliceVar(&createTags, "tag", nil, "tag (repeatable)")
	createCmd.Flags().StringVar(&createCustomFields, "fields", "", "custom fields as a JSON object")
	createCmd.Flags().StringVar(&createID, "id", "", "supply a task id for retryable creation")
	rootCmd.AddCommand(createCmd)
}
