// Package lattice provides a minimal public API for embedding the tracker in
// Go programs.
//
// Most integrations should drive the lattice CLI with --json and parse the
// response envelopes. This package exports only the essential types and
// entry points for programs that want to operate on a state directory
// in-process.
package lattice

import (
	"github.com/latticehq/lattice/internal/service"
	"github.com/latticehq/lattice/internal/store"
	"github.com/latticehq/lattice/internal/types"
)

// Core types for working with tasks.
type (
	Task          = types.Task
	Event         = types.Event
	Artifact      = types.Artifact
	Relationship  = types.Relationship
	EvidenceRef   = types.EvidenceRef
	Error         = types.Error
	ErrorCode     = types.ErrorCode
	Envelope      = types.Envelope
	Service       = service.Service
	Meta          = service.Meta
	CreateRequest = service.CreateRequest
	ListFilter    = service.ListFilter
	Patch         = service.Patch
)

// Relationship type constants.
const (
	RelBlocks      = types.RelBlocks
	RelBlockedBy   = types.RelBlockedBy
	RelRelatesTo   = types.RelRelatesTo
	RelDuplicateOf = types.RelDuplicateOf
	RelParentOf    = types.RelParentOf
	RelChildOf     = types.RelChildOf
)

// Common error codes.
const (
	CodeNotFound          = types.CodeNotFound
	CodeInvalidInput      = types.CodeInvalidInput
	CodeInvalidTransition = types.CodeInvalidTransition
	CodeCompletionBlocked = types.CodeCompletionBlocked
	CodeConflict          = types.CodeConflict
	CodeLockTimeout       = types.CodeLockTimeout
	CodeNothingToClaim    = types.CodeNothingToClaim
)

// IsCode reports whether err carries the given error code.
func IsCode(err error, code ErrorCode) bool { return types.IsCode(err, code) }

// Open wires a Service over the state directory found by walking up from
// startDir (or via LATTICE_ROOT).
func Open(startDir string) (*Service, error) {
	s, err := store.Discover(startDir)
	if err != nil {
		return nil, err
	}
	return service.Open(s)
}

// Init creates a fresh state directory under parentDir and returns a Service
// over it.
func Init(parentDir string) (*Service, error) {
	s, err := store.Init(parentDir)
	if err != nil {
		return nil, err
	}
	return service.Open(s)
}
