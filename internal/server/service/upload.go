package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"resourcehub/internal/server/apperr"
	"resourcehub/internal/server/database"
	"resourcehub/internal/server/ingest"
	"resourcehub/internal/server/metrics"
)

// Upload validates an incoming file, writes it to permanent storage and
// creates its record. If the record cannot be written the stored bytes are
// removed again.
func (s *ArtifactService) Upload(ctx context.Context, actor Actor, raw ingest.RawUpload) (*database.Artifact, error) {
	if err := requireUser(actor); err != nil {
		return nil, err
	}

	// 1. Validate before anything touches storage
	upload, err := s.validator.Validate(raw)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	// 2. Allocate a fresh address
	addr, err := s.store.Allocate(upload.Kind.Extension())
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	// 3. Store the bytes, never more than the ceiling
	limit := s.validator.MaxSize()
	saved, err := s.store.Save(addr, io.LimitReader(upload.File, limit+1))
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	if saved.Size > limit {
		s.discard(addr.Name)
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, apperr.TooLarge(limit)
	}

	// 4. Create database record
	meta := upload.Metadata
	artifact := &database.Artifact{
		OwnerID:     actor.UserID,
		Title:       meta.Title,
		Description: meta.Description,
		Category:    meta.Category,
		Subject:     meta.Subject,
		Semester:    meta.Semester,
		StoredName:  addr.Name,
		StoragePath: addr.Path,
		MediaKind:   upload.Kind,
		ByteSize:    saved.Size,
		Checksum:    saved.Checksum,
		PositionX:   meta.PositionX,
		PositionY:   meta.PositionY,
	}
	if err := s.repo.Create(ctx, artifact); err != nil {
		// Clean up stored file on DB failure
		s.discard(addr.Name)
		metrics.UploadsTotal.WithLabelValues("failed").Inc()
		return nil, apperr.Persistence("failed to create file record", err)
	}

	metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	slog.Info("artifact uploaded",
		"id", artifact.ID,
		"owner_id", artifact.OwnerID,
		"media_kind", artifact.MediaKind,
		"size", artifact.ByteSize,
		"stored_name", artifact.StoredName,
	)
	return artifact, nil
}

// discard removes bytes that never got a matching record.
func (s *ArtifactService) discard(storedName string) {
	if err := s.store.Delete(storedName); err != nil {
		slog.Error("failed to remove orphaned file", "stored_name", storedName, "error", err)
	}
}

// DownloadFilename builds the attachment name for an artifact from its title.
func DownloadFilename(title string, kind database.MediaKind) string {
	return sanitizeFilename(title) + "." + kind.Extension()
}

// sanitizeFilename strips directory components, quotes and control
// characters and limits length.
func sanitizeFilename(name string) string {
	// Normalize Windows-style backslashes to forward slashes before
	// calling filepath.Base, which is platform-specific.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))

	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '"' {
			return -1
		}
		return r
	}, name)

	if r := []rune(name); len(r) > 200 {
		name = string(r[:200])
	}
	if name == "" || name == "." || name == "/" {
		name = "download"
	}
	return name
}
