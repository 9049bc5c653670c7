package service

import (
	"context"
	"log/slog"
	"os"

	"resourcehub/internal/server/apperr"
	"resourcehub/internal/server/database"
	"resourcehub/internal/server/metrics"
)

// DownloadAccountant records permanent artifact downloads.
type DownloadAccountant struct {
	repo Repository
}

// NewDownloadAccountant creates a new download accountant.
func NewDownloadAccountant(repo Repository) *DownloadAccountant {
	return &DownloadAccountant{repo: repo}
}

// RecordDownload increments the artifact's counter and appends one history
// record. These are two separate writes; if the second fails the counter is
// ahead of the history.
func (a *DownloadAccountant) RecordDownload(ctx context.Context, artifactID, userID int64) error {
	if err := a.repo.IncrementDownloadCount(ctx, artifactID); err != nil {
		return repoError(err, "failed to record download")
	}
	if err := a.repo.AppendDownloadRecord(ctx, artifactID, userID); err != nil {
		slog.Error("download counted without history record",
			"artifact_id", artifactID,
			"user_id", userID,
			"error", err,
		)
		return apperr.Persistence("failed to record download history", err)
	}
	return nil
}

// Download is an open permanent artifact ready to stream.
type Download struct {
	File     *os.File
	Artifact *database.Artifact
	FileName string
	Size     int64 // current on-disk size
}

// Download opens a permanent artifact and records the download. Nothing is
// counted when the bytes are missing, and nothing is served when the
// download cannot be recorded.
func (s *ArtifactService) Download(ctx context.Context, actor Actor, id int64) (*Download, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}
	artifact, err := loadArtifact(ctx, s.repo, id)
	if err != nil {
		return nil, err
	}

	f, info, err := s.store.Open(artifact.StoredName)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			slog.Error("artifact bytes missing from storage", "id", id, "stored_name", artifact.StoredName)
		}
		return nil, err
	}

	if err := s.accountant.RecordDownload(ctx, id, actor.UserID); err != nil {
		f.Close()
		return nil, err
	}
	artifact.DownloadCount++

	metrics.DownloadsTotal.WithLabelValues("permanent").Inc()
	slog.Info("artifact downloaded", "id", id, "user_id", actor.UserID)
	return &Download{
		File:     f,
		Artifact: artifact,
		FileName: DownloadFilename(artifact.Title, artifact.MediaKind),
		Size:     info.Size(),
	}, nil
}
