package storage

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"resourcehub/internal/server/apperr"
)

// StorageAddress is an allocated, not yet written, location in permanent storage.
type StorageAddress struct {
	Name string // stored file name, unique within the root
	Path string // absolute path under the storage root
}

// SaveResult describes bytes written to permanent storage.
type SaveResult struct {
	Size     int64
	Checksum string // hex BLAKE2b-256
}

// FileSystemStore keeps permanent artifacts on the local filesystem.
// Names are allocated once and never re-derived from content.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0o755); err != nil {
		return apperr.Storage(fmt.Sprintf("failed to create storage directory %s", fs.basePath), err)
	}
	return nil
}

// Allocate reserves a collision-resistant name with the given extension and
// resolves it to an absolute path. The root is created on first use.
func (fs *FileSystemStore) Allocate(extension string) (StorageAddress, error) {
	if err := fs.EnsureDir(); err != nil {
		return StorageAddress{}, err
	}
	abs, err := filepath.Abs(fs.basePath)
	if err != nil {
		return StorageAddress{}, apperr.Storage("failed to resolve storage root", err)
	}

	name := allocateName(extension)
	return StorageAddress{Name: name, Path: filepath.Join(abs, name)}, nil
}

// allocateName combines a nanosecond timestamp with a random UUID.
func allocateName(extension string) string {
	ext := strings.ToLower(strings.TrimPrefix(extension, "."))
	return fmt.Sprintf("%s_%s.%s",
		time.Now().UTC().Format("20060102T150405.000000000"),
		strings.ReplaceAll(uuid.NewString(), "-", ""),
		ext,
	)
}

// Save streams data into the allocated address. Bytes land in a temp file
// first and are renamed into place, so a failed write leaves nothing behind.
func (fs *FileSystemStore) Save(addr StorageAddress, data io.Reader) (*SaveResult, error) {
	tmpPath := addr.Path + ".part"

	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, apperr.Storage("failed to create file", err)
	}

	hasher, _ := blake2b.New256(nil)
	n, err := io.Copy(io.MultiWriter(file, hasher), data)
	if err != nil {
		file.Close()
		os.Remove(tmpPath)
		return nil, apperr.Storage("failed to write file", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return nil, apperr.Storage("failed to sync file", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, apperr.Storage("failed to close file", err)
	}
	if err := os.Rename(tmpPath, addr.Path); err != nil {
		os.Remove(tmpPath)
		return nil, apperr.Storage("failed to move file into place", err)
	}

	return &SaveResult{Size: n, Checksum: hex.EncodeToString(hasher.Sum(nil))}, nil
}

// CopyIn copies an existing file into the allocated address.
// The source is left untouched.
func (fs *FileSystemStore) CopyIn(addr StorageAddress, srcPath string) (*SaveResult, error) {
	src, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("source file no longer exists")
		}
		return nil, apperr.Storage("failed to open source file", err)
	}
	defer src.Close()

	return fs.Save(addr, src)
}

// Open opens a stored file for reading along with its current on-disk info.
func (fs *FileSystemStore) Open(storedName string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(fs.filePath(storedName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, apperr.NotFound(fmt.Sprintf("file %s is missing from storage", storedName))
		}
		return nil, nil, apperr.Storage("failed to open stored file", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, apperr.Storage("failed to stat stored file", err)
	}
	return f, info, nil
}

// Delete removes a stored file. Missing files are not an error.
func (fs *FileSystemStore) Delete(storedName string) error {
	filePath := fs.filePath(storedName)
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		return apperr.Storage(fmt.Sprintf("failed to delete file %s", filePath), err)
	}
	return nil
}

// Path returns the on-disk path of a stored file.
func (fs *FileSystemStore) Path(storedName string) string {
	return fs.filePath(storedName)
}

// filePath keeps lookups inside the root even for hostile names.
func (fs *FileSystemStore) filePath(storedName string) string {
	return filepath.Join(fs.basePath, filepath.Base(storedName))
}
