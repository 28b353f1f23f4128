package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/latticehq/lattice/internal/integrity"
	"github.com/latticehq/lattice/internal/lockfile"
)

var doctorFix bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Audit the state directory for corruption and drift",
	Long: `Scan event logs, snapshots, and indexes for problems: torn appends,
snapshot drift, dangling relationships, missing artifact payloads, and index
disagreements. With --fix, repairable issues are healed by truncating torn
log tails and regenerating derived state; committed history is never edited.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		doc := integrity.NewDoctor(svc.Store(), svc.Config(), lockfile.NewManager(svc.Store().LocksDir()))
		rep, err := doc.Run(cmd.Context(), doctorFix)
		if err != nil {
			fail(err)
		}

		emit(rep, func() {
			fmt.Printf("Scanned %d task(s), %d event(s)\n", rep.TasksScanned, rep.EventsScanned)
			for _, iss := range rep.Issues {
				loc := iss.TaskID
				if loc == "" {
					loc = iss.Path
				}
				fmt.Printf("  [%s] %s: %s\n", iss.Check, loc, iss.Detail)
			}
			for _, fixed := range rep.Fixed {
				fmt.Printf("  fixed: %s\n", fixed)
			}
			if rep.Healthy() {
				fmt.Println("No problems found.")
			}
		})
		if !rep.Healthy() && !doctorFix {
			os.Exit(1)
		}
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "repair fixable issues")
	rootCmd.AddCommand(doctorCmd)
}
