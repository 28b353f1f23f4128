package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticehq/lattice/internal/configfile"
	"github.com/latticehq/lattice/internal/store"
)

var initProjectCode string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a .lattice state directory in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := store.Init(".")
		if err != nil {
			return err
		}
		cfg := configfile.Default()
		cfg.ProjectCode = initProjectCode
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.Save(s); err != nil {
			return err
		}

		emit(map[string]string{"root": s.Root(), "project_code": initProjectCode}, func() {
			fmt.Printf("Initialized lattice state in %s\n", s.Root())
			if initProjectCode != "" {
				fmt.Printf("Short IDs enabled with project code %s\n", initProjectCode)
			}
		})
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initProjectCode, "project-code", "", "enable short IDs like CODE-1")
	rootCmd.AddCommand(initCmd)
}
