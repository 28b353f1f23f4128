package service

import (
	"context"
	"strings"

	"github.com/latticehq/lattice/internal/artifact"
	"github.com/latticehq/lattice/internal/types"
)

// AttachRequest describes an artifact attachment.
type AttachRequest struct {
	Source    types.ArtifactSource
	Ref       string // file path for file sources, URL/reference otherwise
	Title     string
	Summary   string
	Sensitive bool
	Role      string
}

// AttachResult carries the updated snapshot and the stored artifact record.
type AttachResult struct {
	Task     *types.Task     `json:"task"`
	Artifact *types.Artifact `json:"artifact"`
}

// Attach stores an artifact payload and appends artifact_attached. A role
// makes the artifact count as evidence; off-vocabulary roles are accepted
// and flagged by doctor. The payload is copied (for file sources) before the
// event lands; a failed copy leaves no event behind.
func (s *Service) Attach(ctx context.Context, taskID string, req AttachRequest, meta Meta) (*AttachResult, error) {
	id, err := s.Resolve(taskID)
	if err != nil {
		return nil, err
	}

	// The artifact id derives from the event id, so a retry carrying the
	// same idempotency key stores under the same paths.
	eventID := s.eventID(meta)
	artifactID := "art_" + strings.TrimPrefix(eventID, "ev_")
	res := &AttachResult{}
	task, err := s.mutate(ctx, "attach", id, meta, false, func(snap *types.Task) (*types.Event, error) {
		art, err := s.arts.Put(artifact.PutRequest{
			ID:        artifactID,
			TaskID:    id,
			Source:    req.Source,
			Ref:       req.Ref,
			Title:     req.Title,
			Summary:   req.Summary,
			Sensitive: req.Sensitive,
			Role:      req.Role,
			Actor:     meta.Actor,
			CreatedAt: s.clk.Now(),
		})
		if err != nil {
			return nil, err
		}
		res.Artifact = art
		return &types.Event{
			ID:         eventID,
			Type:       types.EventArtifactAttached,
			TaskID:     id,
			Actor:      meta.Actor,
			Data:       types.MustMarshalData(types.ArtifactAttachedData{ArtifactID: art.ID, Role: req.Role}),
			Provenance: meta.Provenance,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	res.Task = task
	if res.Artifact == nil {
		// Replayed retry: the build callback never ran, so recover the
		// artifact the first attempt stored.
		res.Artifact, err = s.arts.Get(artifactID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Artifact loads one artifact's metadata.
func (s *Service) Artifact(id string) (*types.Artifact, error) {
	return s.arts.Get(id)
}

// Artifacts lists the artifacts attached to a task.
func (s *Service) Artifacts(taskID string) ([]*types.Artifact, error) {
	id, err := s.Resolve(taskID)
	if err != nil {
		return nil, err
	}
	all, err := s.arts.List()
	if err != nil {
		return nil, err
	}
	var out []*types.Artifact
	for _, a := range all {
		if a.TaskID == id {
			out = append(out, a)
		}
	}
	return out, nil
}
