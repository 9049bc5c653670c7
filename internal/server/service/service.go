package service

import (
	"context"
	"errors"
	"log/slog"

	"resourcehub/internal/server/apperr"
	"resourcehub/internal/server/convert"
	"resourcehub/internal/server/database"
	"resourcehub/internal/server/ingest"
	"resourcehub/internal/server/storage"
)

// Repository is the artifact metadata store the services depend on.
// *database.Repository satisfies it.
type Repository interface {
	Create(ctx context.Context, a *database.Artifact) error
	GetByID(ctx context.Context, id int64) (*database.Artifact, error)
	List(ctx context.Context, p database.ListParams) (*database.ArtifactPage, error)
	Update(ctx context.Context, id int64, patch database.ArtifactPatch) (*database.Artifact, error)
	Delete(ctx context.Context, id int64) error
	IncrementDownloadCount(ctx context.Context, id int64) error
	AppendDownloadRecord(ctx context.Context, artifactID, userID int64) error
	Pin(ctx context.Context, userID, artifactID int64) error
	Unpin(ctx context.Context, userID, artifactID int64) error
	ListPinned(ctx context.Context, userID int64) ([]*database.Artifact, error)
}

// Actor is the authenticated caller of an operation. A zero UserID means
// the request is unauthenticated.
type Actor struct {
	UserID int64
	Admin  bool
}

// Authenticated reports whether the actor carries a user id.
func (a Actor) Authenticated() bool { return a.UserID > 0 }

// CanModify reports whether the actor may mutate the artifact.
func (a Actor) CanModify(artifact *database.Artifact) bool {
	return a.Admin || a.UserID == artifact.OwnerID
}

// ArtifactService contains the business logic for the file lifecycle:
// upload, metadata, pins, conversion, staged files, promotion and downloads.
type ArtifactService struct {
	repo       Repository
	store      *storage.FileSystemStore
	staging    *storage.Staging
	ledger     *storage.StagedLedger
	validator  *ingest.Validator
	engine     convert.Engine
	promotion  *PromotionService
	accountant *DownloadAccountant
}

// NewArtifactService creates a new artifact service.
func NewArtifactService(
	repo Repository,
	store *storage.FileSystemStore,
	staging *storage.Staging,
	ledger *storage.StagedLedger,
	validator *ingest.Validator,
	engine convert.Engine,
) *ArtifactService {
	return &ArtifactService{
		repo:       repo,
		store:      store,
		staging:    staging,
		ledger:     ledger,
		validator:  validator,
		engine:     engine,
		promotion:  NewPromotionService(repo, store, staging, ledger),
		accountant: NewDownloadAccountant(repo),
	}
}

func requireUser(actor Actor) error {
	if !actor.Authenticated() {
		return apperr.Unauthenticated()
	}
	return nil
}

// loadArtifact reads an artifact and classifies repository failures.
func loadArtifact(ctx context.Context, repo Repository, id int64) (*database.Artifact, error) {
	artifact, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, repoError(err, "failed to load file")
	}
	return artifact, nil
}

func repoError(err error, reason string) error {
	if errors.Is(err, database.ErrArtifactNotFound) {
		return apperr.NotFound("file not found")
	}
	return apperr.Persistence(reason, err)
}

// authorizeStaged runs the staging root check and logs rejections as
// security events.
func authorizeStaged(staging *storage.Staging, actor Actor, candidate, op string) (storage.StagedRef, error) {
	ref, err := staging.Authorize(candidate)
	if err != nil {
		if apperr.Is(err, apperr.KindPath) {
			slog.Warn("rejected staged path outside staging root",
				"event", "security",
				"operation", op,
				"user_id", actor.UserID,
				"candidate", candidate,
			)
		}
		return storage.StagedRef{}, err
	}
	return ref, nil
}

// MaxUploadSize is the largest file Upload accepts, in bytes.
func (s *ArtifactService) MaxUploadSize() int64 { return s.validator.MaxSize() }
