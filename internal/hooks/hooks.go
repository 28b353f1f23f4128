// Package hooks runs user-configured commands after write verbs. Hook
// patterns from config are matched against the just-written event; matching
// commands are spawned as detached subprocesses. The core never waits on
// hook output, and a hook that fails to spawn is logged, never surfaced.
package hooks

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/latticehq/lattice/internal/types"
)

// Runner matches and spawns hooks.
type Runner struct {
	root   string // state directory, exported to hooks as LATTICE_ROOT
	hooks  map[string]string
	logger *slog.Logger
	tracer trace.Tracer

	// spawn is swappable in tests.
	spawn func(cmd *exec.Cmd) error
}

// NewRunner creates a runner over the configured pattern -> command map.
func NewRunner(root string, hooks map[string]string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		root:   root,
		hooks:  hooks,
		logger: logger,
		tracer: otel.Tracer("github.com/latticehq/lattice/internal/hooks"),
		spawn:  func(cmd *exec.Cmd) error { return cmd.Start() },
	}
}

// Fire matches ev against every configured pattern and spawns each matching
// command. Fire-and-forget: spawned processes are released, not awaited.
func (r *Runner) Fire(ev *types.Event) {
	if len(r.hooks) == 0 {
		return
	}

	from, to := transitionOf(ev)
	for pattern, command := range r.hooks {
		if !Matches(pattern, ev, from, to) {
			continue
		}
		r.run(pattern, command, ev, from, to)
	}
}

// Matches reports whether a hook pattern applies to an event. Supported
// pattern forms:
//
//	on_create, on_status_change, on_archive   event-class shorthands
//	status_changed, comment_added, x_deploy   exact event type
//	"* -> review", "review -> done"           transition patterns, * wildcard
func Matches(pattern string, ev *types.Event, from, to string) bool {
	pattern = strings.TrimSpace(pattern)

	if strings.Contains(pattern, "->") {
		if ev.Type != types.EventStatusChanged {
			return false
		}
		parts := strings.SplitN(pattern, "->", 2)
		wantFrom := strings.TrimSpace(parts[0])
		wantTo := strings.TrimSpace(parts[1])
		return (wantFrom == "*" || wantFrom == from) && (wantTo == "*" || wantTo == to)
	}

	switch pattern {
	case "on_create":
		return ev.Type == types.EventTaskCreated
	case "on_status_change":
		return ev.Type == types.EventStatusChanged
	case "on_archive":
		return ev.Type == types.EventTaskArchived || ev.Type == types.EventTaskUnarchived
	case "on_comment":
		return ev.Type == types.EventCommentAdded || ev.Type == types.EventCommentEdited ||
			ev.Type == types.EventCommentDeleted
	}
	return pattern == string(ev.Type)
}

func transitionOf(ev *types.Event) (from, to string) {
	if ev.Type != types.EventStatusChanged {
		return "", ""
	}
	var data types.StatusChangedData
	if err := ev.DecodeData(&data); err != nil {
		return "", ""
	}
	return data.From, data.To
}

// Expand substitutes template placeholders in a hook command.
func Expand(template string, ev *types.Event, from, to string) string {
	repl := strings.NewReplacer(
		"{task_id}", ev.TaskID,
		"{from}", from,
		"{to}", to,
		"{actor}", ev.Actor,
		"{event_id}", ev.ID,
		"{event_type}", string(ev.Type),
	)
	return repl.Replace(template)
}

func (r *Runner) run(pattern, command string, ev *types.Event, from, to string) {
	_, span := r.tracer.Start(context.Background(), "hooks.spawn", trace.WithAttributes(
		attribute.String("hook.pattern", pattern),
		attribute.String("event.type", string(ev.Type)),
		attribute.String("task.id", ev.TaskID),
	))
	defer span.End()

	expanded := Expand(command, ev, from, to)
	cmd := exec.Command("sh", "-c", expanded) // #nosec G204 - command comes from the project's own config
	cmd.Env = append(os.Environ(),
		"LATTICE_TASK_ID="+ev.TaskID,
		"LATTICE_ROOT="+r.root,
		"LATTICE_EVENT_TYPE="+string(ev.Type),
		"LATTICE_ACTOR="+ev.Actor,
		"LATTICE_FROM="+from,
		"LATTICE_TO="+to,
	)
	cmd.Stdout = nil
	cmd.Stderr = nil
	detach(cmd)

	if err := r.spawn(cmd); err != nil {
		span.AddEvent("hook.spawn_failed", trace.WithAttributes(attribute.String("error", err.Error())))
		r.logger.Warn("hook failed to spawn",
			"pattern", pattern, "command", expanded, "error", err)
		return
	}
	// Detached: let the child outlive this process.
	go func() { _ = cmd.Wait() }()
}
