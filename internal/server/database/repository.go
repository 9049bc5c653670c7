package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

var (
	ErrArtifactNotFound = errors.New("artifact not found")
)

const artifactColumns = `id, owner_id, title, description, category, subject, semester,
	stored_name, storage_path, media_kind, byte_size, checksum,
	position_x, position_y, download_count, created_at, updated_at`

// Repository provides CRUD operations for artifacts, download records and pins.
// It does not encode authorization; callers check ownership.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new artifact and fills in its ID and timestamps.
// DownloadCount always starts at zero.
func (r *Repository) Create(ctx context.Context, a *Artifact) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO artifacts (
			owner_id, title, description, category, subject, semester,
			stored_name, storage_path, media_kind, byte_size, checksum,
			position_x, position_y, download_count
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, 0)
		RETURNING id, download_count, created_at, updated_at
	`,
		a.OwnerID,
		a.Title,
		a.Description,
		a.Category,
		a.Subject,
		a.Semester,
		a.StoredName,
		a.StoragePath,
		string(a.MediaKind),
		a.ByteSize,
		a.Checksum,
		a.PositionX,
		a.PositionY,
	).Scan(&a.ID, &a.DownloadCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create artifact: %w", err)
	}
	return nil
}

// GetByID retrieves an artifact by its ID.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Artifact, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = $1`, id)
	a, err := scanArtifact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to get artifact: %w", err)
	}
	return a, nil
}

// List returns one page of artifacts, newest first.
func (r *Repository) List(ctx context.Context, p ListParams) (*ArtifactPage, error) {
	where, args := listFilter(p)

	page := &ArtifactPage{}
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM artifacts`+where, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("failed to count artifacts: %w", err)
	}

	args = append(args, p.Limit, p.Offset)
	rows, err := r.db.Pool.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM artifacts%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		artifactColumns, where, len(args)-1, len(args),
	), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		page.Artifacts = append(page.Artifacts, a)
	}
	return page, rows.Err()
}

func listFilter(p ListParams) (string, []any) {
	var clauses []string
	var args []any
	add := func(column string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if p.Category != "" {
		add("category", p.Category)
	}
	if p.Subject != "" {
		add("subject", p.Subject)
	}
	if p.Semester != "" {
		add("semester", p.Semester)
	}
	if p.OwnerID != 0 {
		add("owner_id", p.OwnerID)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Update applies a patch and returns the updated artifact.
func (r *Repository) Update(ctx context.Context, id int64, patch ArtifactPatch) (*Artifact, error) {
	var sets []string
	var args []any
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Title != nil {
		set("title", *patch.Title)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Category != nil {
		set("category", *patch.Category)
	}
	if patch.Subject != nil {
		set("subject", *patch.Subject)
	}
	if patch.Semester != nil {
		set("semester", *patch.Semester)
	}
	if patch.PositionX != nil {
		set("position_x", *patch.PositionX)
	}
	if patch.PositionY != nil {
		set("position_y", *patch.PositionY)
	}
	if len(sets) == 0 {
		return r.GetByID(ctx, id)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	row := r.db.Pool.QueryRow(ctx, fmt.Sprintf(
		`UPDATE artifacts SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), artifactColumns,
	), args...)
	a, err := scanArtifact(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("failed to update artifact: %w", err)
	}
	return a, nil
}

// Delete removes an artifact row. Download records and pins cascade.
// The stored bytes are the caller's responsibility.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, "DELETE FROM artifacts WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrArtifactNotFound
	}
	return nil
}

// IncrementDownloadCount atomically increments the download counter.
func (r *Repository) IncrementDownloadCount(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx,
		"UPDATE artifacts SET download_count = download_count + 1 WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to increment download count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrArtifactNotFound
	}
	return nil
}

// AppendDownloadRecord inserts one download history row.
func (r *Repository) AppendDownloadRecord(ctx context.Context, artifactID, userID int64) error {
	_, err := r.db.Pool.Exec(ctx,
		"INSERT INTO download_records (user_id, artifact_id) VALUES ($1, $2)", userID, artifactID)
	if err != nil {
		return fmt.Errorf("failed to append download record: %w", err)
	}
	return nil
}

// ListDownloadRecords returns the download history of an artifact, oldest first.
func (r *Repository) ListDownloadRecords(ctx context.Context, artifactID int64) ([]DownloadRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, user_id, artifact_id, downloaded_at
		FROM download_records WHERE artifact_id = $1 ORDER BY id
	`, artifactID)
	if err != nil {
		return nil, fmt.Errorf("failed to query download records: %w", err)
	}
	defer rows.Close()

	var records []DownloadRecord
	for rows.Next() {
		var rec DownloadRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ArtifactID, &rec.DownloadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan download record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Pin marks an artifact as a favourite of the user. Pinning twice is a no-op.
func (r *Repository) Pin(ctx context.Context, userID, artifactID int64) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO pins (user_id, artifact_id) VALUES ($1, $2)
		ON CONFLICT (user_id, artifact_id) DO NOTHING
	`, userID, artifactID)
	if err != nil {
		return fmt.Errorf("failed to pin artifact: %w", err)
	}
	return nil
}

// Unpin removes a pin. Removing a missing pin is a no-op.
func (r *Repository) Unpin(ctx context.Context, userID, artifactID int64) error {
	if _, err := r.db.Pool.Exec(ctx,
		"DELETE FROM pins WHERE user_id = $1 AND artifact_id = $2", userID, artifactID); err != nil {
		return fmt.Errorf("failed to unpin artifact: %w", err)
	}
	return nil
}

// ListPinned returns the artifacts pinned by a user, most recently pinned first.
func (r *Repository) ListPinned(ctx context.Context, userID int64) ([]*Artifact, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT a.id, a.owner_id, a.title, a.description, a.category, a.subject, a.semester,
		       a.stored_name, a.storage_path, a.media_kind, a.byte_size, a.checksum,
		       a.position_x, a.position_y, a.download_count, a.created_at, a.updated_at
		FROM pins p JOIN artifacts a ON a.id = p.artifact_id
		WHERE p.user_id = $1
		ORDER BY p.pinned_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pinned artifacts: %w", err)
	}
	defer rows.Close()

	var artifacts []*Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pinned artifact: %w", err)
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, rows.Err()
}

func scanArtifact(row pgx.Row) (*Artifact, error) {
	a := &Artifact{}
	var kind string
	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.Title,
		&a.Description,
		&a.Category,
		&a.Subject,
		&a.Semester,
		&a.StoredName,
		&a.StoragePath,
		&kind,
		&a.ByteSize,
		&a.Checksum,
		&a.PositionX,
		&a.PositionY,
		&a.DownloadCount,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.MediaKind = MediaKind(kind)
	return a, nil
}
