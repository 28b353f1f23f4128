// Command lattice is the file-based, event-sourced task tracker CLI.
// State lives in a .lattice directory discovered by walking up from the
// working directory (or via LATTICE_ROOT).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/latticehq/lattice/internal/service"
	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/telemetry"
	"github.com/latticehq/lattice/internal/types"
)

// Version is stamped by the release build.
var Version = "dev"

var (
	actorFlag   string
	jsonOutput  bool
	verboseFlag bool

	svc *service.Service

	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:           "lattice",
	Short:         "File-based, event-sourced task tracker for mixed human/agent teams",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelWarn
		if verboseFlag {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

		if err := telemetry.Init(rootCtx, "lattice", Version); err != nil {
			slog.Warn("telemetry init failed", "error", err)
		}

		// init has no state directory yet; everything else needs one.
		if cmd.Name() == "init" || cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}
		s, err := store.Discover(".")
		if err != nil {
			return err
		}
		svc, err = service.Open(s, service.WithLogger(slog.Default()))
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		telemetry.Shutdown(rootCtx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&actorFlag, "actor", "", "acting identity, e.g. agent:claude (env LATTICE_ACTOR)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit the response envelope as JSON")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "enable debug logging")

	viper.SetEnvPrefix("LATTICE")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("actor", rootCmd.PersistentFlags().Lookup("actor"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

// requireActor resolves the acting identity or exits with the envelope error.
func requireActor() service.Meta {
	actor, err := svc.ResolveActor(viper.GetString("actor"))
	if err != nil {
		fail(err)
	}
	return service.Meta{Actor: actor}
}

// emit prints a successful result: the envelope under --json, a human line
// otherwise.
func emit(data any, human func()) {
	if jsonOutput || viper.GetBool("json") {
		out, err := types.OKEnvelope(data).MarshalIndentJSON()
		if err != nil {
			fail(err)
		}
		fmt.Println(string(out))
		return
	}
	human()
}

// fail prints the error envelope (or a human line) and exits non-zero.
func fail(err error) {
	if jsonOutput || viper.GetBool("json") {
		out, _ := types.ErrEnvelope(err).MarshalIndentJSON()
		fmt.Println(string(out))
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", types.AsError(err).Message)
	}
	telemetry.Shutdown(rootCtx)
	os.Exit(1)
}

func main() {
	rootCtx, rootCancel = context.WithCancel(context.Background())
	defer rootCancel()

	if err := rootCmd.ExecuteContext(rootCtx); err != nil {
		fail(err)
	}
}
