package database

import (
	"strings"
	"time"
)

// MediaKind is the canonical format tag of an artifact.
type MediaKind string

const (
	MediaPDF  MediaKind = "pdf"
	MediaDOCX MediaKind = "docx"
)

// ParseMediaKind maps a file extension (with or without the dot, any case)
// to a MediaKind.
func ParseMediaKind(ext string) (MediaKind, bool) {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "pdf":
		return MediaPDF, true
	case "docx":
		return MediaDOCX, true
	}
	return "", false
}

// Extension returns the file extension without the leading dot.
func (k MediaKind) Extension() string {
	return string(k)
}

// ContentType returns the MIME type served for this kind.
func (k MediaKind) ContentType() string {
	switch k {
	case MediaPDF:
		return "application/pdf"
	case MediaDOCX:
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/octet-stream"
}

// Artifact is a permanently stored file and its metadata.
type Artifact struct {
	ID            int64     `json:"id"`
	OwnerID       int64     `json:"owner_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Subject       string    `json:"subject"`
	Semester      string    `json:"semester"`
	StoredName    string    `json:"stored_name"`
	StoragePath   string    `json:"-"`
	MediaKind     MediaKind `json:"media_kind"`
	ByteSize      int64     `json:"byte_size"`
	Checksum      string    `json:"checksum,omitempty"`
	PositionX     int       `json:"position_x"`
	PositionY     int       `json:"position_y"`
	DownloadCount int       `json:"download_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ArtifactPatch carries owner/admin edits. Nil fields are left untouched.
type ArtifactPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	Subject     *string `json:"subject,omitempty"`
	Semester    *string `json:"semester,omitempty"`
	PositionX   *int    `json:"position_x,omitempty"`
	PositionY   *int    `json:"position_y,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ArtifactPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil &&
		p.Subject == nil && p.Semester == nil && p.PositionX == nil && p.PositionY == nil
}

// DownloadRecord is one successful download of a permanent artifact.
type DownloadRecord struct {
	ID           int64
	UserID       int64
	ArtifactID   int64
	DownloadedAt time.Time
}

// ListParams filters and paginates artifact listings.
type ListParams struct {
	Category string
	Subject  string
	Semester string
	OwnerID  int64
	Limit    int
	Offset   int
}

// ArtifactPage is one page of a listing plus the total match count.
type ArtifactPage struct {
	Artifacts []*Artifact
	Total     int64
}
