package service

import (
	"context"
	"log/slog"
	"os"

	"resourcehub/internal/server/apperr"
	"resourcehub/internal/server/convert"
	"resourcehub/internal/server/database"
	"resourcehub/internal/server/metrics"
)

// StagedArtifact is a conversion output waiting under the staging root.
// It has no database record until it is promoted.
type StagedArtifact struct {
	TempFilePath string             `json:"temp_file_path"`
	FileName     string             `json:"file_name"`
	MediaKind    database.MediaKind `json:"media_kind"`
	ByteSize     int64              `json:"byte_size"`
	SourceID     int64              `json:"source_id"`
}

// StagedDownload is an open staged file ready to stream.
type StagedDownload struct {
	File      *os.File
	FileName  string
	MediaKind database.MediaKind
	Size      int64
}

// Convert converts a permanent artifact into a staged artifact of the other
// format. The source artifact and its bytes are left untouched. Any
// authenticated user may convert.
func (s *ArtifactService) Convert(ctx context.Context, actor Actor, id int64, conversionType string) (*StagedArtifact, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	dir, err := convert.ParseDirection(conversionType)
	if err != nil {
		return nil, err
	}
	source, err := loadArtifact(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.Convert(ctx, convert.Source{
		Path:  s.store.Path(source.StoredName),
		Title: source.Title,
		Kind:  source.MediaKind,
	}, dir)
	if err != nil {
		slog.Warn("conversion failed",
			"id", id,
			"direction", dir,
			"user_id", actor.UserID,
			"kind", apperr.KindOf(err).String(),
			"error", err,
		)
		return nil, err
	}

	// The staged path must pass the same check every later request will run.
	ref, err := s.staging.Authorize(res.Path)
	if err != nil {
		os.Remove(res.Path)
		return nil, apperr.Storage("conversion output landed outside the staging area", err)
	}
	s.ledger.Track(ref)

	slog.Info("conversion completed",
		"id", id,
		"direction", dir,
		"user_id", actor.UserID,
		"staged", ref.Name(),
		"size", res.Size,
	)
	return &StagedArtifact{
		TempFilePath: ref.Path(),
		FileName:     DownloadFilename(source.Title, res.Kind),
		MediaKind:    res.Kind,
		ByteSize:     res.Size,
		SourceID:     source.ID,
	}, nil
}

// DownloadStaged opens a staged artifact for streaming. Staged downloads
// never touch download counters or history.
func (s *ArtifactService) DownloadStaged(ctx context.Context, actor Actor, tempFilePath string) (*StagedDownload, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	ref, err := authorizeStaged(s.staging, actor, tempFilePath, "staged_download")
	if err != nil {
		return nil, err
	}
	kind, ok := database.ParseMediaKind(ref.Ext())
	if !ok {
		return nil, apperr.NotFound("staged file not found")
	}

	f, info, err := s.staging.Open(ref)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.MarkRead(ref); err != nil {
		slog.Warn("staged download outside expected lifecycle", "path", ref.Path(), "error", err)
	}

	metrics.DownloadsTotal.WithLabelValues("staged").Inc()
	return &StagedDownload{
		File:      f,
		FileName:  ref.Name(),
		MediaKind: kind,
		Size:      info.Size(),
	}, nil
}

// Cleanup removes a staged artifact. Paths outside the staging root are
// rejected, as is a file whose promotion is still running. A missing or
// unremovable file is still reported as success.
func (s *ArtifactService) Cleanup(ctx context.Context, actor Actor, tempFilePath string) error {
	if err := requireUser(actor); err != nil {
		return err
	}
	ref, err := authorizeStaged(s.staging, actor, tempFilePath, "staged_cleanup")
	if err != nil {
		return err
	}

	if err := s.ledger.BeginDelete(ref); err != nil {
		slog.Warn("staged cleanup refused", "path", ref.Path(), "user_id", actor.UserID, "error", err)
		return err
	}
	removed, err := s.staging.Remove(ref)
	if cerr := s.ledger.CompleteDelete(ref); cerr != nil {
		slog.Warn("staged ledger out of step", "path", ref.Path(), "error", cerr)
	}
	switch {
	case err != nil:
		metrics.StagedCleanupsTotal.WithLabelValues("failed").Inc()
		slog.Error("failed to remove staged file", "path", ref.Path(), "user_id", actor.UserID, "error", err)
		return nil
	case removed:
		metrics.StagedCleanupsTotal.WithLabelValues("removed").Inc()
		slog.Info("staged file removed", "path", ref.Path(), "user_id", actor.UserID)
	default:
		metrics.StagedCleanupsTotal.WithLabelValues("missing").Inc()
	}
	return nil
}

// Promote saves a staged artifact as a new permanent artifact derived from
// the original one.
func (s *ArtifactService) Promote(ctx context.Context, actor Actor, originalID int64, tempFilePath string) (*database.Artifact, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	ref, err := authorizeStaged(s.staging, actor, tempFilePath, "staged_promotion")
	if err != nil {
		return nil, err
	}
	return s.promotion.Promote(ctx, actor, originalID, ref)
}
