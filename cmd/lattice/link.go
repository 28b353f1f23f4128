package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var linkNote string

var linkCmd = &cobra.Command{
	Use:   "link <source> <type> <target>",
	Short: "Add a typed relationship between tasks",
	Long: `Add a typed relationship edge, e.g.

  lattice link LAT-1 blocks LAT-2
  lattice link LAT-3 child_of LAT-4

Known types (blocks, blocked_by, parent_of, child_of, relates_to) also write
the inverse edge on the target.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()
		res, err := svc.Link(cmd.Context(), args[0], args[1], args[2], linkNote, meta)
		if err != nil {
			fail(err)
		}
		emit(res, func() {
			fmt.Printf("%s %s %s\n", displayID(res.Source), args[1], displayID(res.Target))
		})
	},
}

var unlinkCmd = &cobra.Command{
	Use:   "unlink <source> <type> <target>",
	Short: "Remove a relationship added by link",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()
		res, err := svc.Unlink(cmd.Context(), args[0], args[1], args[2], meta)
		if err != nil {
			fail(err)
		}
		emit(res, func() {
			fmt.Printf("Removed %s %s %s\n", displayID(res.Source), args[1], displayID(res.Target))
		})
	},
}

func init() {
	linkCmd.Flags().StringVar(&linkNote, "note", "", "free-form note on the edge")
	rootCmd.AddCommand(linkCmd, unlinkCmd)
}
