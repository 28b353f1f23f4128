// Package service orchestrates task verbs over the state directory: it wires
// locks, the event log, the reducer, the workflow engine, and hooks into the
// single write pipeline every mutation goes through.
package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/latticehq/lattice/internal/artifact"
	"github.com/latticehq/lattice/internal/clock"
	"github.com/latticehq/lattice/internal/configfile"
	"github.com/latticehq/lattice/internal/eventlog"
	"github.com/latticehq/lattice/internal/hooks"
	"github.com/latticehq/lattice/internal/idgen"
	"github.com/latticehq/lattice/internal/integrity"
	"github.com/latticehq/lattice/internal/lockfile"
	"github.com/latticehq/lattice/internal/reducer"
	"github.com/latticehq/lattice/internal/shortid"
	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/telemetry"
	"github.com/latticehq/lattice/internal/types"
	"github.com/latticehq/lattice/internal/workflow"
)

// EnvActor names the acting identity when no --actor flag is given.
const EnvActor = "LATTICE_ACTOR"

// Service executes task verbs against one state directory.
type Service struct {
	store  *store.Store
	cfg    *configfile.Config
	locks  *lockfile.Manager
	log    *eventlog.Log
	red    *reducer.Reducer
	wf     *workflow.Engine
	gen    *idgen.Generator
	clk    *clock.Monotonic
	short  *shortid.Service
	arts   *artifact.Store
	hooks  *hooks.Runner
	reb    *integrity.Rebuilder
	logger *slog.Logger
	tracer trace.Tracer
}

// Option customizes a Service at Open time.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock replaces the wall clock, for tests.
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clk = clock.NewMonotonic(c) }
}

// Open loads the config from the state directory and wires a Service over it.
func Open(s *store.Store, opts ...Option) (*Service, error) {
	cfg, err := configfile.Load(s)
	if err != nil {
		return nil, err
	}

	locks := lockfile.NewManager(s.LocksDir())
	if cfg.LockTimeoutSeconds > 0 {
		locks = locks.WithTimeout(time.Duration(cfg.LockTimeoutSeconds) * time.Second)
	}

	maxBytes := cfg.MaxArtifactBytes
	if maxBytes <= 0 {
		maxBytes = configfile.DefaultMaxArtifactBytes
	}

	svc := &Service{
		store:  s,
		cfg:    cfg,
		locks:  locks,
		log:    eventlog.New(s),
		red:    reducer.New(cfg),
		wf:     workflow.New(cfg),
		gen:    idgen.New(),
		clk:    clock.NewMonotonic(clock.System{}),
		short:  shortid.New(s, locks),
		arts:   artifact.New(s, maxBytes),
		reb:    integrity.NewRebuilder(s, cfg, locks),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: otel.Tracer(telemetry.Scope()),
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.hooks = hooks.NewRunner(s.Root(), cfg.Hooks, svc.logger)
	return svc, nil
}

// Config returns the loaded workflow config.
func (s *Service) Config() *configfile.Config { return s.cfg }

// Store returns the underlying state directory.
func (s *Service) Store() *store.Store { return s.store }

// Meta carries the acting identity and optional provenance for one command.
type Meta struct {
	Actor      string
	EventID    string // optional idempotency key; generated when empty
	Provenance *types.Provenance
}

// ResolveActor picks the acting identity: explicit argument, then the
// LATTICE_ACTOR environment variable, then the configured default.
func (s *Service) ResolveActor(explicit string) (string, error) {
	actor := explicit
	if actor == "" {
		actor = os.Getenv(EnvActor)
	}
	if actor == "" {
		actor = s.cfg.DefaultActor
	}
	if actor == "" {
		return "", types.Errorf(types.CodeInvalidInput,
			"actor is required: pass --actor, set %s, or configure default_actor", EnvActor)
	}
	if err := types.ValidateActor(actor); err != nil {
		return "", err
	}
	return actor, nil
}

// Resolve maps a short-ID alias or raw task ID to the task ULID.
func (s *Service) Resolve(aliasOrID string) (string, error) {
	return s.short.Resolve(aliasOrID)
}

// eventID returns the idempotency key for a command, generating one for
// first-time submissions.
func (s *Service) eventID(meta Meta) string {
	if meta.EventID != "" {
		return meta.EventID
	}
	return s.gen.EventID()
}

// loadLocked reads a task snapshot while holding its lock. A missing or
// unreadable snapshot with a surviving event log is healed by replay; no log
// at all is NOT_FOUND.
func (s *Service) loadLocked(taskID string) (*types.Task, error) {
	var snap types.Task
	err := store.ReadJSON(s.store.TaskPath(taskID), &snap)
	if err == nil {
		return &snap, nil
	}
	if os.IsNotExist(err) {
		if err := store.ReadJSON(s.store.ArchivedTaskPath(taskID), &snap); err == nil {
			return &snap, nil
		}
	}
	if !s.log.Exists(taskID) {
		return nil, types.Errorf(types.CodeNotFound, "no task %s", taskID)
	}
	s.logger.Warn("snapshot missing or unreadable, rebuilding from events", "task", taskID)
	return s.reb.RebuildLockedSnapshot(taskID)
}

// mutate is the single write pipeline: lock, load, build the event, stamp it,
// append, reduce, persist, index, fire hooks. The build callback sees the
// current snapshot and returns the event to append; returning nil means
// no-op. Retried commands that hit the idempotency path return the current
// snapshot unchanged. Any after funcs run post-commit, still under the lock.
func (s *Service) mutate(ctx context.Context, verb, taskID string, meta Meta, allowArchived bool,
	build func(snap *types.Task) (*types.Event, error),
	after ...func(taskID string) error) (*types.Task, error) {

	ctx, span := s.tracer.Start(ctx, "lattice."+verb,
		trace.WithAttributes(attribute.String("task.id", taskID)))
	defer span.End()

	scope, err := s.locks.Acquire(ctx, lockfile.TaskResource(taskID))
	if err != nil {
		return nil, err
	}
	defer scope.Release()

	snap, err := s.loadLocked(taskID)
	if err != nil {
		return nil, err
	}
	// A supplied event id already in the log means an earlier attempt applied
	// this command; the retry returns the state that attempt produced. Checked
	// before build, which would otherwise re-validate against the advanced
	// snapshot and reject its own effect.
	if meta.EventID != "" {
		_, found, err := s.log.Find(taskID, meta.EventID)
		if err != nil {
			return nil, err
		}
		if found {
			s.logger.Debug("idempotent retry, command already applied",
				"task", taskID, "event", meta.EventID)
			return snap, nil
		}
	}
	if snap.Archived && !allowArchived {
		return nil, types.Errorf(types.CodeAlreadyArchived,
			"task %s is archived and read-only; unarchive it first", taskID)
	}

	ev, err := build(snap)
	if err != nil {
		return nil, err
	}
	if ev == nil {
		return snap, nil
	}
	next, err := s.commitLocked(snap, ev)
	if err != nil {
		return nil, err
	}
	for _, fn := range after {
		if err := fn(taskID); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// commitLocked appends a built event and lands its side effects. The caller
// holds the task lock and has validated the command.
func (s *Service) commitLocked(snap *types.Task, ev *types.Event) (*types.Task, error) {
	last, err := s.log.LastTimestamp(ev.TaskID)
	if err != nil {
		return nil, err
	}
	s.clk.Observe(last)
	ev.TS = s.clk.Now()

	appended, err := s.log.Append(ev)
	if err != nil {
		return nil, err
	}
	if !appended {
		s.logger.Debug("idempotent retry, no-op", "task", ev.TaskID, "event", ev.ID)
		return snap, nil
	}

	next, err := s.red.Apply(snap, ev)
	if err != nil {
		return nil, err
	}
	if err := s.writeSnapshot(next); err != nil {
		return nil, err
	}
	if err := s.log.AppendLifecycle(ev); err != nil {
		return nil, err
	}

	s.logger.Info("event committed",
		"task", ev.TaskID, "event", ev.ID, "type", ev.Type, "actor", ev.Actor)
	s.hooks.Fire(ev)
	return next, nil
}
