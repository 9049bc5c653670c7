package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"resourcehub/internal/server/apperr"
	"resourcehub/internal/server/convert"
	"resourcehub/internal/server/database"
	"resourcehub/internal/server/ingest"
	"resourcehub/internal/server/storage"
)

// memRepo is an in-memory Repository with failure injection.
type memRepo struct {
	mu        sync.Mutex
	nextID    int64
	artifacts map[int64]*database.Artifact
	records   []database.DownloadRecord
	pins      map[[2]int64]time.Time

	createErr error
	appendErr error
}

func newMemRepo() *memRepo {
	return &memRepo{
		artifacts: make(map[int64]*database.Artifact),
		pins:      make(map[[2]int64]time.Time),
	}
}

func (r *memRepo) Create(_ context.Context, a *database.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.nextID++
	a.ID = r.nextID
	a.DownloadCount = 0
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	r.artifacts[a.ID] = &cp
	return nil
}

func (r *memRepo) GetByID(_ context.Context, id int64) (*database.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[id]
	if !ok {
		return nil, database.ErrArtifactNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) List(_ context.Context, p database.ListParams) (*database.ArtifactPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []*database.Artifact
	for _, a := range r.artifacts {
		if p.Subject != "" && a.Subject != p.Subject {
			continue
		}
		cp := *a
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	page := &database.ArtifactPage{Total: int64(len(all))}
	for i := p.Offset; i < len(all) && i < p.Offset+p.Limit; i++ {
		page.Artifacts = append(page.Artifacts, all[i])
	}
	return page, nil
}

func (r *memRepo) Update(_ context.Context, id int64, patch database.ArtifactPatch) (*database.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[id]
	if !ok {
		return nil, database.ErrArtifactNotFound
	}
	if patch.Title != nil {
		a.Title = *patch.Title
	}
	if patch.Subject != nil {
		a.Subject = *patch.Subject
	}
	if patch.Description != nil {
		a.Description = *patch.Description
	}
	if patch.PositionX != nil {
		a.PositionX = *patch.PositionX
	}
	if patch.PositionY != nil {
		a.PositionY = *patch.PositionY
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.artifacts[id]; !ok {
		return database.ErrArtifactNotFound
	}
	delete(r.artifacts, id)
	kept := r.records[:0]
	for _, rec := range r.records {
		if rec.ArtifactID != id {
			kept = append(kept, rec)
		}
	}
	r.records = kept
	for k := range r.pins {
		if k[1] == id {
			delete(r.pins, k)
		}
	}
	return nil
}

func (r *memRepo) IncrementDownloadCount(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.artifacts[id]
	if !ok {
		return database.ErrArtifactNotFound
	}
	a.DownloadCount++
	return nil
}

func (r *memRepo) AppendDownloadRecord(_ context.Context, artifactID, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	r.records = append(r.records, database.DownloadRecord{
		ID:           int64(len(r.records) + 1),
		UserID:       userID,
		ArtifactID:   artifactID,
		DownloadedAt: time.Now(),
	})
	return nil
}

func (r *memRepo) Pin(_ context.Context, userID, artifactID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := [2]int64{userID, artifactID}
	if _, ok := r.pins[key]; !ok {
		r.pins[key] = time.Now()
	}
	return nil
}

func (r *memRepo) Unpin(_ context.Context, userID, artifactID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pins, [2]int64{userID, artifactID})
	return nil
}

func (r *memRepo) ListPinned(_ context.Context, userID int64) ([]*database.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*database.Artifact
	for k := range r.pins {
		if k[0] == userID {
			if a, ok := r.artifacts[k[1]]; ok {
				cp := *a
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (r *memRepo) recordsFor(id int64) []database.DownloadRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []database.DownloadRecord
	for _, rec := range r.records {
		if rec.ArtifactID == id {
			out = append(out, rec)
		}
	}
	return out
}

// fakeEngine stands in for the external converters.
type fakeEngine struct {
	staging *storage.Staging
	body    []byte
	err     error
	calls   int
}

func (f *fakeEngine) Convert(_ context.Context, src convert.Source, dir convert.Direction) (*convert.Result, error) {
	f.calls++
	if src.Kind != dir.From() {
		return nil, apperr.InvalidDirection("direction does not match source")
	}
	if f.err != nil {
		return nil, f.err
	}
	path, err := f.staging.NewPath(src.Title, dir.To().Extension())
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, f.body, 0o644); err != nil {
		return nil, err
	}
	return &convert.Result{Path: path, Kind: dir.To(), Size: int64(len(f.body))}, nil
}

type testEnv struct {
	svc         *ArtifactService
	repo        *memRepo
	engine      *fakeEngine
	staging     *storage.Staging
	storageDir  string
	stagingRoot string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := t.TempDir()
	storageDir := filepath.Join(base, "files")
	staging := storage.NewStaging(filepath.Join(base, "staging"))
	require.NoError(t, staging.EnsureDir())
	stagingRoot, err := staging.Root()
	require.NoError(t, err)

	repo := newMemRepo()
	engine := &fakeEngine{staging: staging, body: []byte("PK converted docx body")}
	svc := NewArtifactService(
		repo,
		storage.NewFileSystemStore(storageDir),
		staging,
		storage.NewStagedLedger(),
		ingest.NewValidator(10<<20),
		engine,
	)
	return &testEnv{
		svc:         svc,
		repo:        repo,
		engine:      engine,
		staging:     staging,
		storageDir:  storageDir,
		stagingRoot: stagingRoot,
	}
}

var (
	owner    = Actor{UserID: 1}
	stranger = Actor{UserID: 2}
	admin    = Actor{UserID: 99, Admin: true}
)

func pdfUpload(size int, title, subject string) ingest.RawUpload {
	data := make([]byte, size)
	copy(data, []byte("%PDF-1.4\n%test\n"))
	for i := len("%PDF-1.4\n%test\n"); i < size; i++ {
		data[i] = ' '
	}
	return ingest.RawUpload{
		File:     bytes.NewReader(data),
		Filename: "midterm.pdf",
		Size:     int64(size),
		Metadata: ingest.Metadata{
			Title:     title,
			Subject:   subject,
			Category:  "exams",
			Semester:  "3",
			PositionX: 100,
			PositionY: 200,
		},
	}
}

func (e *testEnv) uploadMidterm(t *testing.T) *database.Artifact {
	t.Helper()
	a, err := e.svc.Upload(context.Background(), owner, pdfUpload(2<<20, "Midterm", "CS101"))
	require.NoError(t, err)
	return a
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	require.NoError(t, err)
	return len(entries)
}
