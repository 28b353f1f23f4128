package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/latticehq/lattice/internal/service"
	"github.com/latticehq/lattice/internal/types"
)

var (
	attachSource    string
	attachTitle     string
	attachSummary   string
	attachRole      string
	attachSensitive bool
)

var attachCmd = &cobra.Command{
	Use:   "attach <id> <ref>",
	Short: "Attach an artifact (file path, URL, or reference)",
	Long: `Attach an artifact to a task. File payloads are copied into the state
directory; URL-class sources are stored by reference only. A --role makes the
artifact count as completion evidence:

  lattice attach LAT-1 ./bench.txt --source file --role benchmark
  lattice attach LAT-1 https://ci.example.com/run/99 --source url`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		meta := requireActor()
		res, err := svc.Attach(cmd.Context(), args[0], service.AttachRequest{
			Source:    types.ArtifactSource(attachSource),
			Ref:       args[1],
			Title:     attachTitle,
			Summary:   attachSummary,
			Role:      attachRole,
			Sensitive: attachSensitive,
		}, meta)
		if err != nil {
			fail(err)
		}
		emit(res, func() {
			fmt.Printf("Attached %s to %s (%s)\n", res.Artifact.ID, displayID(res.Task), res.Artifact.PayloadRef)
		})
	},
}

var artifactsCmd = &cobra.Command{
	Use:   "artifacts <id>",
	Short: "List a task's artifacts",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		arts, err := svc.Artifacts(args[0])
		if err != nil {
			fail(err)
		}
		emit(arts, func() {
			if len(arts) == 0 {
				fmt.Println("No artifacts.")
				return
			}
			for _, a := range arts {
				fmt.Printf("%s  %-12s %s  %s\n", a.ID, a.Source, orDash(a.Role), a.PayloadRef)
			}
		})
	},
}

func init() {
	attachCmd.Flags().StringVar(&attachSource, "source", "file", "source kind: file, url, conversation, prompt, log, reference")
	attachCmd.Flags().StringVar(&attachTitle, "title", "", "artifact title")
	attachCmd.Flags().StringVar(&attachSummary, "summary", "", "one-line summary")
	attachCmd.Flags().StringVar(&attachRole, "role", "", "evidence role, e.g. benchmark")
	attachCmd.Flags().BoolVar(&attachSensitive, "sensitive", false, "mark the artifact sensitive")
	rootCmd.AddCommand(attachCmd, artifactsCmd)
}
