package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"resourcehub/internal/server/apperr"
	"resourcehub/internal/server/database"
	"resourcehub/internal/server/metrics"
	"resourcehub/internal/server/storage"
)

// PositionOffset is added to both canvas coordinates of a promoted artifact
// so it does not sit on top of its source.
const PositionOffset = 50

const convertedSuffix = " (Converted)"

// PromotionService copies staged artifacts into permanent storage.
type PromotionService struct {
	repo    Repository
	store   *storage.FileSystemStore
	staging *storage.Staging
	ledger  *storage.StagedLedger
}

// NewPromotionService creates a new promotion service.
func NewPromotionService(repo Repository, store *storage.FileSystemStore, staging *storage.Staging, ledger *storage.StagedLedger) *PromotionService {
	return &PromotionService{repo: repo, store: store, staging: staging, ledger: ledger}
}

// Promote copies the staged file into permanent storage and creates a new
// artifact that inherits the original's owner and classification. The staged
// file stays in place. Each staged file can be promoted once.
func (p *PromotionService) Promote(ctx context.Context, actor Actor, originalID int64, ref storage.StagedRef) (*database.Artifact, error) {
	original, err := loadArtifact(ctx, p.repo, originalID)
	if err != nil {
		return nil, err
	}
	if !actor.CanModify(original) {
		return nil, apperr.Forbidden("only the owner or an admin can save a converted copy of this file")
	}

	kind, ok := database.ParseMediaKind(ref.Ext())
	if !ok {
		return nil, apperr.Validation("temp_file_path", "staged file is not a PDF or DOCX")
	}
	if _, err := p.staging.Stat(ref); err != nil {
		return nil, err
	}

	if err := p.ledger.BeginPromotion(ref); err != nil {
		metrics.PromotionsTotal.WithLabelValues("conflict").Inc()
		return nil, err
	}

	artifact, err := p.promote(ctx, original, kind, ref)
	if err != nil {
		if abortErr := p.ledger.AbortPromotion(ref); abortErr != nil {
			slog.Error("failed to release promotion claim", "path", ref.Path(), "error", abortErr)
		}
		metrics.PromotionsTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	if err := p.ledger.CompletePromotion(ref); err != nil {
		slog.Error("failed to record promotion", "path", ref.Path(), "error", err)
	}

	metrics.PromotionsTotal.WithLabelValues("success").Inc()
	slog.Info("staged artifact promoted",
		"id", artifact.ID,
		"original_id", original.ID,
		"owner_id", artifact.OwnerID,
		"user_id", actor.UserID,
		"media_kind", artifact.MediaKind,
		"size", artifact.ByteSize,
	)
	return artifact, nil
}

func (p *PromotionService) promote(ctx context.Context, original *database.Artifact, kind database.MediaKind, ref storage.StagedRef) (*database.Artifact, error) {
	addr, err := p.store.Allocate(kind.Extension())
	if err != nil {
		return nil, err
	}
	saved, err := p.store.CopyIn(addr, ref.Path())
	if err != nil {
		return nil, err
	}

	artifact := &database.Artifact{
		OwnerID:     original.OwnerID,
		Title:       convertedTitle(original.Title),
		Description: convertedDescription(original, kind),
		Category:    original.Category,
		Subject:     original.Subject,
		Semester:    original.Semester,
		StoredName:  addr.Name,
		StoragePath: addr.Path,
		MediaKind:   kind,
		ByteSize:    saved.Size,
		Checksum:    saved.Checksum,
		PositionX:   original.PositionX + PositionOffset,
		PositionY:   original.PositionY + PositionOffset,
	}
	if err := p.repo.Create(ctx, artifact); err != nil {
		if delErr := p.store.Delete(addr.Name); delErr != nil {
			slog.Error("failed to remove orphaned promoted file", "stored_name", addr.Name, "error", delErr)
		}
		return nil, apperr.Persistence("failed to create converted file record", err)
	}
	return artifact, nil
}

// convertedTitle appends the converted suffix, shortening the original title
// so the result still fits the title column.
func convertedTitle(title string) string {
	const maxTitle = 255
	r := []rune(title)
	if room := maxTitle - len([]rune(convertedSuffix)); len(r) > room {
		r = r[:room]
	}
	return string(r) + convertedSuffix
}

func convertedDescription(original *database.Artifact, to database.MediaKind) string {
	note := fmt.Sprintf("Converted from %s to %s",
		strings.ToUpper(string(original.MediaKind)), strings.ToUpper(string(to)))
	if original.Description == "" {
		return note
	}
	desc := original.Description + "\n\n" + note
	if r := []rune(desc); len(r) > 2000 {
		return note
	}
	return desc
}
