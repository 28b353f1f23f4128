package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var eventData string

var eventCmd = &cobra.Command{
	Use:   "event <id> <x_type>",
	Short: "Record a custom event on a task's log",
	Long: `Record a caller-defined event. Custom types must carry the x_ prefix;
built-in type names are reserved:

  lattice event LAT-1 x_deploy --data '{"env":"staging"}'`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()
		task, err := svc.RecordCustomEvent(cmd.Context(), args[0], args[1], json.RawMessage(eventData), meta)
		if err != nil {
			fail(err)
		}
		emit(task, func() {
			fmt.Printf("Recorded %s on %s\n", args[1], displayID(task))
		})
	},
}

var logCmd = &cobra.Command{
	Use:   "log <id>",
	Short: "Print a task's full event history",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		events, err := svc.Events(args[0])
		if err != nil {
			fail(err)
		}
		emit(events, func() {
			for _, ev := range events {
				fmt.Printf("%s  %-22s %-16s %s\n", ev.TS.Time.Format("2006-01-02 15:04:05.000"), ev.Type, ev.Actor, string(ev.Data))
			}
		})
	},
}

func init() {
	eventCmd.Flags().StringVar(&eventData, "data", "", "event payload as JSON")
	rootCmd.AddCommand(eventCmd, logCmd)
}
