package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/latticehq/lattice/internal/lockfile"
	"github.com/latticehq/lattice/internal/types"
)

// inverseRel maps a relationship type to the edge written on the target so
// both snapshots see the connection. Types without a known inverse get an
// edge on the source only.
var inverseRel = map[string]string{
	types.RelBlocks:    types.RelBlockedBy,
	types.RelBlockedBy: types.RelBlocks,
	types.RelParentOf:  types.RelChildOf,
	types.RelChildOf:   types.RelParentOf,
	types.RelRelatesTo: types.RelRelatesTo,
}

// LinkResult carries both updated snapshots after a link or unlink.
type LinkResult struct {
	Source *types.Task `json:"source"`
	Target *types.Task `json:"target"`
}

// Link adds a typed edge from source to target, and the inverse edge on the
// target when the type has one. Both task locks are taken in sorted order;
// both events land before either lock is released.
func (s *Service) Link(ctx context.Context, sourceID, relType, targetID, note string, meta Meta) (*LinkResult, error) {
	if relType == "" {
		return nil, types.NewError(types.CodeInvalidInput, "relationship type is required")
	}
	return s.editLink(ctx, "link", sourceID, relType, targetID, note, meta, true)
}

// Unlink removes an edge added by Link, including its inverse.
func (s *Service) Unlink(ctx context.Context, sourceID, relType, targetID string, meta Meta) (*LinkResult, error) {
	if relType == "" {
		return nil, types.NewError(types.CodeInvalidInput, "relationship type is required")
	}
	return s.editLink(ctx, "unlink", sourceID, relType, targetID, "", meta, false)
}

func (s *Service) editLink(ctx context.Context, verb, sourceID, relType, targetID, note string, meta Meta, add bool) (*LinkResult, error) {
	src, err := s.Resolve(sourceID)
	if err != nil {
		return nil, err
	}
	tgt, err := s.Resolve(targetID)
	if err != nil {
		return nil, err
	}
	if src == tgt {
		return nil, types.Errorf(types.CodeSelfLink, "task %s cannot link to itself", src)
	}

	ctx, span := s.tracer.Start(ctx, "lattice."+verb,
		trace.WithAttributes(
			attribute.String("task.id", src),
			attribute.String("task.target", tgt),
			attribute.String("rel.type", relType),
		))
	defer span.End()

	// One Acquire call sorts the two resources, so concurrent links between
	// the same pair cannot deadlock.
	scope, err := s.locks.Acquire(ctx, lockfile.TaskResource(src), lockfile.TaskResource(tgt))
	if err != nil {
		return nil, err
	}
	defer scope.Release()

	srcSnap, err := s.loadLocked(src)
	if err != nil {
		return nil, err
	}
	tgtSnap, err := s.loadLocked(tgt)
	if err != nil {
		return nil, err
	}
	// Retry with a supplied event id already in the source log: the edge edit
	// landed on the first attempt.
	if meta.EventID != "" {
		_, found, err := s.log.Find(src, meta.EventID)
		if err != nil {
			return nil, err
		}
		if found {
			return &LinkResult{Source: srcSnap, Target: tgtSnap}, nil
		}
	}
	if srcSnap.Archived || tgtSnap.Archived {
		return nil, types.NewError(types.CodeAlreadyArchived,
			"cannot edit links on an archived task; unarchive it first")
	}

	if add {
		if srcSnap.HasRelationship(tgt, relType) {
			return nil, types.Errorf(types.CodeDuplicateLink,
				"%s already has a %s edge to %s", src, relType, tgt)
		}
	} else if !srcSnap.HasRelationship(tgt, relType) {
		return nil, types.Errorf(types.CodeLinkNotFound,
			"%s has no %s edge to %s", src, relType, tgt)
	}

	evType := types.EventRelationshipAdded
	if !add {
		evType = types.EventRelationshipRemoved
	}

	srcSnap, err = s.commitLocked(srcSnap, &types.Event{
		ID:         s.eventID(meta),
		Type:       evType,
		TaskID:     src,
		Actor:      meta.Actor,
		Data:       types.MustMarshalData(types.RelationshipData{TargetID: tgt, Type: relType, Note: note}),
		Provenance: meta.Provenance,
	})
	if err != nil {
		return nil, err
	}

	if inv, ok := inverseRel[relType]; ok {
		needInverse := add && !tgtSnap.HasRelationship(src, inv) ||
			!add && tgtSnap.HasRelationship(src, inv)
		if needInverse {
			tgtSnap, err = s.commitLocked(tgtSnap, &types.Event{
				ID:         s.gen.EventID(),
				Type:       evType,
				TaskID:     tgt,
				Actor:      meta.Actor,
				Data:       types.MustMarshalData(types.RelationshipData{TargetID: src, Type: inv, Note: note}),
				Provenance: meta.Provenance,
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return &LinkResult{Source: srcSnap, Target: tgtSnap}, nil
}
