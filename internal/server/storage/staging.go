package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"resourcehub/internal/server/apperr"
)

// StagedRef is a staged file path that has passed the root check.
// Only Staging.Authorize produces one.
type StagedRef struct {
	path string
}

// Path returns the canonical absolute path of the staged file.
func (r StagedRef) Path() string { return r.path }

// Name returns the base name of the staged file.
func (r StagedRef) Name() string { return filepath.Base(r.path) }

// Ext returns the lowercase extension without the leading dot.
func (r StagedRef) Ext() string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(r.path), "."))
}

// Staging is the scratch root that holds conversion outputs until they are
// downloaded, promoted or cleaned up. Every client-supplied path is checked
// against it before any filesystem access.
type Staging struct {
	root string
}

// NewStaging creates a staging area rooted at root.
func NewStaging(root string) *Staging {
	return &Staging{root: root}
}

// EnsureDir creates the staging root if it doesn't exist.
func (s *Staging) EnsureDir() error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return apperr.Storage(fmt.Sprintf("failed to create staging directory %s", s.root), err)
	}
	return nil
}

// Root returns the canonical staging root.
func (s *Staging) Root() (string, error) {
	root, err := canonicalize(s.root)
	if err != nil {
		return "", apperr.Storage("failed to resolve staging root", err)
	}
	return root, nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// NewPath returns a fresh path under the staging root for a file derived
// from base. Concurrent conversions of the same source never collide.
func (s *Staging) NewPath(base, extension string) (string, error) {
	if err := s.EnsureDir(); err != nil {
		return "", err
	}
	root, err := s.Root()
	if err != nil {
		return "", err
	}

	name := sanitizeName(base)
	file := fmt.Sprintf("%s_%d_%s.%s",
		name,
		time.Now().Unix(),
		uuid.NewString()[:8],
		strings.ToLower(strings.TrimPrefix(extension, ".")),
	)
	return filepath.Join(root, file), nil
}

func sanitizeName(base string) string {
	name := unsafeNameChars.ReplaceAllString(strings.TrimSpace(base), "_")
	name = strings.Trim(name, "._")
	if name == "" {
		name = "converted"
	}
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

// Authorize resolves candidate to its canonical form and returns a StagedRef
// only if it is strictly inside the staging root. Relative candidates are
// taken relative to the root. Symlinks are followed before the comparison,
// so a link inside the root that points outside is rejected. The file itself
// does not need to exist.
func (s *Staging) Authorize(candidate string) (StagedRef, error) {
	if strings.TrimSpace(candidate) == "" || strings.ContainsRune(candidate, 0) {
		return StagedRef{}, apperr.Path(candidate)
	}

	root, err := s.Root()
	if err != nil {
		return StagedRef{}, err
	}

	p := candidate
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	resolved, err := canonicalize(p)
	if err != nil {
		return StagedRef{}, apperr.Path(candidate)
	}

	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == "." || rel == ".." ||
		strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return StagedRef{}, apperr.Path(candidate)
	}
	return StagedRef{path: resolved}, nil
}

// Stat returns on-disk info for a staged file.
func (s *Staging) Stat(ref StagedRef) (os.FileInfo, error) {
	info, err := os.Stat(ref.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("staged file not found")
		}
		return nil, apperr.Storage("failed to stat staged file", err)
	}
	if !info.Mode().IsRegular() {
		return nil, apperr.NotFound("staged file not found")
	}
	return info, nil
}

// Open opens a staged file for reading.
func (s *Staging) Open(ref StagedRef) (*os.File, os.FileInfo, error) {
	info, err := s.Stat(ref)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(ref.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperr.NotFound("staged file not found")
		}
		return nil, nil, apperr.Storage("failed to open staged file", err)
	}
	return f, info, nil
}

// Remove deletes a staged file. It reports whether a file was removed;
// a missing file is not an error.
func (s *Staging) Remove(ref StagedRef) (bool, error) {
	err := os.Remove(ref.path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, apperr.Storage("failed to remove staged file", err)
}

// OlderThan lists regular staged files whose modification time is before cutoff.
func (s *Staging) OlderThan(cutoff time.Time) ([]StagedRef, error) {
	root, err := s.Root()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Storage("failed to list staging directory", err)
	}

	var refs []StagedRef
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			refs = append(refs, StagedRef{path: filepath.Join(root, e.Name())})
		}
	}
	return refs, nil
}

// canonicalize makes p absolute and resolves symlinks. Trailing components
// that don't exist yet are resolved against their nearest existing ancestor.
func canonicalize(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}

	var missing []string
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		missing = append(missing, filepath.Base(cur))
		cur = parent
	}
}
