package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the active workflow configuration",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := svc.Config()
		emit(cfg, func() {
			fmt.Printf("statuses: %s\n", strings.Join(cfg.Statuses, ", "))
			fmt.Printf("default_status: %s\n", cfg.DefaultStatus)
			for from, targets := range cfg.Transitions {
				fmt.Printf("  %s -> %s\n", from, strings.Join(targets, ", "))
			}
			if cfg.ProjectCode != "" {
				fmt.Printf("project_code: %s\n", cfg.ProjectCode)
			}
			if len(cfg.Hooks) > 0 {
				fmt.Println("hooks:")
				for pattern, command := range cfg.Hooks {
					fmt.Printf("  %s: %s\n", pattern, command)
				}
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
