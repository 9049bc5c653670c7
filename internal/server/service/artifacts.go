package service

import (
	"context"
	"log/slog"

	"resourcehub/internal/server/apperr"
	"resourcehub/internal/server/database"
	"resourcehub/internal/server/ingest"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// ListQuery selects one page of artifacts.
type ListQuery struct {
	Page     int
	PerPage  int
	Category string
	Subject  string
	Semester string
	OwnerID  int64
}

// ListResult is one page of artifacts plus paging info.
type ListResult struct {
	Artifacts []*database.Artifact `json:"files"`
	Total     int64                `json:"total"`
	Page      int                  `json:"page"`
	PerPage   int                  `json:"per_page"`
}

// Get returns the metadata of one artifact.
func (s *ArtifactService) Get(ctx context.Context, actor Actor, id int64) (*database.Artifact, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	return loadArtifact(ctx, s.repo, id)
}

// List returns a page of artifacts, newest first.
func (s *ArtifactService) List(ctx context.Context, actor Actor, q ListQuery) (*ListResult, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}

	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PerPage < 1:
		q.PerPage = DefaultPerPage
	case q.PerPage > MaxPerPage:
		q.PerPage = MaxPerPage
	}

	page, err := s.repo.List(ctx, database.ListParams{
		Category: q.Category,
		Subject:  q.Subject,
		Semester: q.Semester,
		OwnerID:  q.OwnerID,
		Limit:    q.PerPage,
		Offset:   (q.Page - 1) * q.PerPage,
	})
	if err != nil {
		return nil, apperr.Persistence("failed to list files", err)
	}

	artifacts := page.Artifacts
	if artifacts == nil {
		artifacts = []*database.Artifact{}
	}
	return &ListResult{Artifacts: artifacts, Total: page.Total, Page: q.Page, PerPage: q.PerPage}, nil
}

// Patch applies an owner or admin edit to an artifact's metadata or position.
func (s *ArtifactService) Patch(ctx context.Context, actor Actor, id int64, patch database.ArtifactPatch) (*database.Artifact, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	artifact, err := loadArtifact(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanModify(artifact) {
		return nil, apperr.Forbidden("only the owner or an admin can edit this file")
	}

	patch, err = ingest.ValidatePatch(patch)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.Update(ctx, id, patch)
	if err != nil {
		return nil, repoError(err, "failed to update file")
	}

	slog.Info("artifact updated", "id", id, "user_id", actor.UserID)
	return updated, nil
}

// Delete removes an artifact record and then its bytes. Download records and
// pins go with the record. A failed byte removal is logged, not returned.
func (s *ArtifactService) Delete(ctx context.Context, actor Actor, id int64) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	artifact, err := loadArtifact(ctx, s.repo, id)
	if err != nil {
		return err
	}
	if !actor.CanModify(artifact) {
		return apperr.Forbidden("only the owner or an admin can delete this file")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return repoError(err, "failed to delete file record")
	}

	if err := s.store.Delete(artifact.StoredName); err != nil {
		slog.Error("failed to delete file from storage",
			"id", id,
			"stored_name", artifact.StoredName,
			"error", err,
		)
	}

	slog.Info("artifact deleted", "id", id, "user_id", actor.UserID, "title", artifact.Title)
	return nil
}

// Pin adds an artifact to the actor's pins. Pinning twice is a no-op.
func (s *ArtifactService) Pin(ctx context.Context, actor Actor, id int64) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	if _, err := loadArtifact(ctx, s.repo, id); err != nil {
		return err
	}
	if err := s.repo.Pin(ctx, actor.UserID, id); err != nil {
		return apperr.Persistence("failed to pin file", err)
	}
	return nil
}

// Unpin removes an artifact from the actor's pins.
func (s *ArtifactService) Unpin(ctx context.Context, actor Actor, id int64) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	if err := s.repo.Unpin(ctx, actor.UserID, id); err != nil {
		return apperr.Persistence("failed to unpin file", err)
	}
	return nil
}

// ListPinned returns the actor's pinned artifacts.
func (s *ArtifactService) ListPinned(ctx context.Context, actor Actor) ([]*database.Artifact, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	pinned, err := s.repo.ListPinned(ctx, actor.UserID)
	if err != nil {
		return nil, apperr.Persistence("failed to list pinned files", err)
	}
	if pinned == nil {
		pinned = []*database.Artifact{}
	}
	return pinned, nil
}
