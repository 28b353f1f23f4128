package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/latticehq/lattice/internal/service"
	"github.com/latticehq/lattice/internal/types"
)

var updateCmd = &cobra.Command{
	Use:   "update <id> <field=value>...",
	Short: "Update task fields",
	Long: `Update task fields. Values are parsed as JSON when possible, so
numbers and lists work; anything else is taken as a string:

  lattice update LAT-1 title="new title" custom_fields.estimate=3
  lattice update LAT-1 tags='["backend","urgent"]'
  lattice update LAT-1 custom_fields.estimate=null   # delete the key`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()

		patches := make([]service.Patch, 0, len(args)-1)
		for _, arg := range args[1:] {
			path, raw, ok := strings.Cut(arg, "=")
			if !ok {
				fail(types.Errorf(types.CodeInvalidInput, "expected field=value, got %q", arg))
			}
			patches = append(patches, service.Patch{Path: path, Value: parseValue(raw)})
		}

		task, err := svc.Update(cmd.Context(), args[0], patches, meta)
		if err != nil {
			fail(err)
		}
		emit(task, func() {
			fmt.Printf("Updated %s (%d field(s))\n", displayID(task), len(patches))
		})
	},
}

// parseValue interprets a CLI value: valid JSON scalars/arrays pass through
// typed, everything else is a plain string.
func parseValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func displayID(t *types.Task) string {
	if t.ShortID != "" {
		return t.ShortID
	}
	return t.ID
}

func init() {
	rootCmd.AddCommand(updateCmd)
}
