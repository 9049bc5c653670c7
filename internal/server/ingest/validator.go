// Package ingest inspects incoming uploads and metadata edits before
// anything touches storage.
package ingest

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"resourcehub/internal/server/apperr"
	"resourcehub/internal/server/database"
)

const (
	maxTextLen        = 255
	maxDescriptionLen = 2000

	docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// Metadata is the free-text and canvas data that accompanies an upload.
type Metadata struct {
	Title       string
	Description string
	Category    string
	Subject     string
	Semester    string
	PositionX   int
	PositionY   int
}

// RawUpload is an upload as received from the transport.
type RawUpload struct {
	File     io.ReadSeeker // nil when no file part was sent
	Filename string
	Size     int64
	Err      error // transport-level error while receiving the file part
	Metadata Metadata
}

// ValidatedUpload is an upload that passed every check.
// File is positioned at the start.
type ValidatedUpload struct {
	File        io.ReadSeeker
	Size        int64
	Kind        database.MediaKind
	SniffedMIME string
	Metadata    Metadata
}

// Validator rejects anything that is not a genuine PDF or DOCX within the size ceiling.
type Validator struct {
	maxSize int64
}

// NewValidator creates a validator with the given byte ceiling.
func NewValidator(maxSize int64) *Validator {
	return &Validator{maxSize: maxSize}
}

// MaxSize returns the configured ceiling in bytes.
func (v *Validator) MaxSize() int64 { return v.maxSize }

// Validate runs the checks in order and stops at the first failure:
// presence, extension, sniffed content type, size, required fields.
// It reads at most the sniffing window from the file and rewinds it.
func (v *Validator) Validate(raw RawUpload) (*ValidatedUpload, error) {
	if raw.Err != nil {
		return nil, apperr.Validation("file", fmt.Sprintf("file upload failed: %v", raw.Err))
	}
	if raw.File == nil {
		return nil, apperr.Validation("file", "no file uploaded")
	}

	kind, ok := database.ParseMediaKind(filepath.Ext(raw.Filename))
	if !ok {
		return nil, apperr.Validation("file", "only PDF and DOCX files are allowed")
	}

	sniffed, err := sniff(raw.File)
	if err != nil {
		return nil, apperr.Validation("file", fmt.Sprintf("failed to read uploaded file: %v", err))
	}
	if !contentMatches(kind, sniffed) {
		return nil, apperr.Validation("file",
			fmt.Sprintf("file content (%s) does not match the .%s extension", sniffed.String(), kind))
	}

	if raw.Size > v.maxSize {
		return nil, apperr.TooLarge(v.maxSize)
	}

	meta, err := normalizeMetadata(raw.Metadata)
	if err != nil {
		return nil, err
	}

	return &ValidatedUpload{
		File:        raw.File,
		Size:        raw.Size,
		Kind:        kind,
		SniffedMIME: sniffed.String(),
		Metadata:    meta,
	}, nil
}

func sniff(r io.ReadSeeker) (*mimetype.MIME, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return nil, err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return mt, nil
}

// contentMatches applies the extension/content consistency rule. A DOCX is a
// zip container, so generic zip and octet-stream results are accepted for it.
func contentMatches(kind database.MediaKind, mt *mimetype.MIME) bool {
	switch kind {
	case database.MediaPDF:
		return mt.Is("application/pdf")
	case database.MediaDOCX:
		return mt.Is(docxMIME) || mt.Is("application/zip") || mt.Is("application/octet-stream")
	}
	return false
}

func normalizeMetadata(m Metadata) (Metadata, error) {
	m.Title = strings.TrimSpace(m.Title)
	m.Description = strings.TrimSpace(m.Description)
	m.Category = strings.TrimSpace(m.Category)
	m.Subject = strings.TrimSpace(m.Subject)
	m.Semester = strings.TrimSpace(m.Semester)

	if m.Title == "" {
		return m, apperr.Validation("title", "title is required")
	}
	if m.Subject == "" {
		return m, apperr.Validation("subject", "subject is required")
	}
	for _, f := range []struct {
		name, value string
		max         int
	}{
		{"title", m.Title, maxTextLen},
		{"category", m.Category, maxTextLen},
		{"subject", m.Subject, maxTextLen},
		{"semester", m.Semester, maxTextLen},
		{"description", m.Description, maxDescriptionLen},
	} {
		if err := checkLength(f.name, f.value, f.max); err != nil {
			return m, err
		}
	}
	return m, nil
}

func checkLength(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return apperr.Validation(field, fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return nil
}

// ValidatePatch checks an edit field by field and returns it with text
// fields trimmed. Only fields present in the patch are checked.
func ValidatePatch(p database.ArtifactPatch) (database.ArtifactPatch, error) {
	if p.Empty() {
		return p, apperr.Validation("patch", "no fields to update")
	}

	text := []struct {
		name     string
		value    **string
		max      int
		required bool
	}{
		{"title", &p.Title, maxTextLen, true},
		{"subject", &p.Subject, maxTextLen, true},
		{"category", &p.Category, maxTextLen, false},
		{"semester", &p.Semester, maxTextLen, false},
		{"description", &p.Description, maxDescriptionLen, false},
	}
	for _, f := range text {
		if *f.value == nil {
			continue
		}
		trimmed := strings.TrimSpace(**f.value)
		if f.required && trimmed == "" {
			return p, apperr.Validation(f.name, fmt.Sprintf("%s cannot be empty", f.name))
		}
		if err := checkLength(f.name, trimmed, f.max); err != nil {
			return p, err
		}
		*f.value = &trimmed
	}
	return p, nil
}
