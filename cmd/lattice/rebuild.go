package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticehq/lattice/internal/integrity"
	"github.com/latticehq/lattice/internal/lockfile"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild [id]",
	Short: "Regenerate snapshots and indexes from the event logs",
	Long: `Replay event logs and rewrite derived state. With a task id only that
snapshot is rebuilt; without one, every snapshot plus the lifecycle and
short-ID indexes are regenerated. Event logs are never modified.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		reb := integrity.NewRebuilder(svc.Store(), svc.Config(), lockfile.NewManager(svc.Store().LocksDir()))

		if len(args) == 1 {
			id, err := svc.Resolve(args[0])
			if err != nil {
				fail(err)
			}
			task, err := reb.RebuildTask(cmd.Context(), id)
			if err != nil {
				fail(err)
			}
			emit(task, func() {
				fmt.Printf("Rebuilt snapshot for %s\n", displayID(task))
			})
			return
		}

		res, err := reb.RebuildAll(cmd.Context())
		if err != nil {
			fail(err)
		}
		emit(res, func() {
			fmt.Printf("Rebuilt %d task(s), %d lifecycle event(s), %d alias(es)\n",
				res.TasksRebuilt, res.LifecycleEvents, res.Aliases)
		})
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
