package service

import (
	"context"
	"strings"

	"github.com/latticehq/lattice/internal/types"
)

// Comment is the derived view of one comment, folded from the event log.
type Comment struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id"`
	Body      string          `json:"body"`
	Role      string          `json:"role,omitempty"`
	Author    string          `json:"author"`
	CreatedAt types.Timestamp  `json:"created_at"`
	EditedAt  *types.Timestamp `json:"edited_at,omitempty"`
}

// CommentAdd appends a comment. A non-empty role marks the comment as
// evidence toward completion policies; roles outside the configured
// vocabulary are accepted and flagged by doctor.
func (s *Service) CommentAdd(ctx context.Context, taskID, body, role string, meta Meta) (*types.Task, string, error) {
	if strings.TrimSpace(body) == "" {
		return nil, "", types.NewError(types.CodeInvalidInput, "comment body is required")
	}
	id, err := s.Resolve(taskID)
	if err != nil {
		return nil, "", err
	}

	// The comment id derives from the event id, so a retry carrying the same
	// idempotency key names the same comment.
	eventID := s.eventID(meta)
	commentID := "cmt_" + strings.TrimPrefix(eventID, "ev_")
	task, err := s.mutate(ctx, "comment.add", id, meta, false, func(snap *types.Task) (*types.Event, error) {
		return &types.Event{
			ID:         eventID,
			Type:       types.EventCommentAdded,
			TaskID:     id,
			Actor:      meta.Actor,
			Data:       types.MustMarshalData(types.CommentData{CommentID: commentID, Body: body, Role: role}),
			Provenance: meta.Provenance,
		}, nil
	})
	if err != nil {
		return nil, "", err
	}
	return task, commentID, nil
}

// CommentEdit rewrites a comment's body and role. The event log keeps the
// original; the derived view shows the latest.
func (s *Service) CommentEdit(ctx context.Context, taskID, commentID, body, role string, meta Meta) (*types.Task, error) {
	if strings.TrimSpace(body) == "" {
		return nil, types.NewError(types.CodeInvalidInput, "comment body is required")
	}
	id, err := s.Resolve(taskID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, "comment.edit", id, meta, false, func(snap *types.Task) (*types.Event, error) {
		if err := s.commentExists(id, commentID); err != nil {
			return nil, err
		}
		return &types.Event{
			ID:         s.eventID(meta),
			Type:       types.EventCommentEdited,
			TaskID:     id,
			Actor:      meta.Actor,
			Data:       types.MustMarshalData(types.CommentData{CommentID: commentID, Body: body, Role: role}),
			Provenance: meta.Provenance,
		}, nil
	})
}

// CommentDelete removes a comment from the derived view. Deleting evidence
// can reopen a completion gate; the event log still shows what was deleted.
func (s *Service) CommentDelete(ctx context.Context, taskID, commentID string, meta Meta) (*types.Task, error) {
	id, err := s.Resolve(taskID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, "comment.delete", id, meta, false, func(snap *types.Task) (*types.Event, error) {
		if err := s.commentExists(id, commentID); err != nil {
			return nil, err
		}
		return &types.Event{
			ID:         s.eventID(meta),
			Type:       types.EventCommentDeleted,
			TaskID:     id,
			Actor:      meta.Actor,
			Data:       types.MustMarshalData(types.CommentDeletedData{CommentID: commentID}),
			Provenance: meta.Provenance,
		}, nil
	})
}

// commentExists scans the log for a live (added, not deleted) comment.
func (s *Service) commentExists(taskID, commentID string) error {
	comments, err := s.Comments(taskID)
	if err != nil {
		return err
	}
	for _, c := range comments {
		if c.ID == commentID {
			return nil
		}
	}
	return types.Errorf(types.CodeCommentNotFound, "no comment %s on task %s", commentID, taskID)
}

// Comments folds the event log into the current comment list, in creation
// order. Edits replace body and role; deletes drop the comment.
func (s *Service) Comments(taskID string) ([]*Comment, error) {
	id, err := s.Resolve(taskID)
	if err != nil {
		return nil, err
	}
	events, err := s.log.Read(id)
	if err != nil {
		return nil, err
	}

	byID := map[string]*Comment{}
	var order []string
	for _, ev := range events {
		switch ev.Type {
		case types.EventCommentAdded:
			var data types.CommentData
			if ev.DecodeData(&data) != nil {
				continue
			}
			byID[data.CommentID] = &Comment{
				ID:        data.CommentID,
				TaskID:    id,
				Body:      data.Body,
				Role:      data.Role,
				Author:    ev.Actor,
				CreatedAt: ev.TS,
			}
			order = append(order, data.CommentID)
		case types.EventCommentEdited:
			var data types.CommentData
			if ev.DecodeData(&data) != nil {
				continue
			}
			if c, ok := byID[data.CommentID]; ok {
				c.Body = data.Body
				c.Role = data.Role
				ts := ev.TS
				c.EditedAt = &ts
			}
		case types.EventCommentDeleted:
			var data types.CommentDeletedData
			if ev.DecodeData(&data) != nil {
				continue
			}
			delete(byID, data.CommentID)
		}
	}

	out := make([]*Comment, 0, len(byID))
	for _, cid := range order {
		if c, ok := byID[cid]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}
