package ingest

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"resourcehub/internal/server/apperr"
	"resourcehub/internal/server/database"
)

const testLimit = 10 << 20

func pdfBytes(size int) []byte {
	head := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")
	if size < len(head) {
		size = len(head)
	}
	out := make([]byte, size)
	copy(out, head)
	for i := len(head); i < size; i++ {
		out[i] = ' '
	}
	return out
}

func zipBytes(t *testing.T, files ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to create zip entry: %v", err)
		}
		w.Write([]byte("<xml/>"))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}

func docxBytes(t *testing.T) []byte {
	return zipBytes(t, "[Content_Types].xml", "_rels/.rels", "word/document.xml")
}

func exeBytes() []byte {
	b := make([]byte, 512)
	copy(b, []byte("MZ\x90\x00\x03\x00\x00\x00\x04\x00\x00\x00\xff\xff"))
	copy(b[0x80:], []byte("PE\x00\x00"))
	return b
}

func upload(name string, data []byte) RawUpload {
	return RawUpload{
		File:     bytes.NewReader(data),
		Filename: name,
		Size:     int64(len(data)),
		Metadata: Metadata{Title: "  Midterm ", Subject: "CS101", Category: "exams", Semester: "3"},
	}
}

func TestValidator_Accepts(t *testing.T) {
	v := NewValidator(testLimit)

	tests := []struct {
		name string
		raw  RawUpload
		kind database.MediaKind
	}{
		{"2 MB pdf", upload("midterm.pdf", pdfBytes(2 << 20)), database.MediaPDF},
		{"uppercase extension", upload("NOTES.PDF", pdfBytes(100)), database.MediaPDF},
		{"real docx", upload("notes.docx", docxBytes(t)), database.MediaDOCX},
		{"docx sniffed as generic zip", upload("notes.docx", zipBytes(t, "a.txt")), database.MediaDOCX},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Kind != tt.kind {
				t.Errorf("expected kind %s, got %s", tt.kind, got.Kind)
			}
			if got.Size != tt.raw.Size {
				t.Errorf("expected size %d, got %d", tt.raw.Size, got.Size)
			}
			if got.Metadata.Title != "Midterm" {
				t.Errorf("expected trimmed title, got %q", got.Metadata.Title)
			}

			// the reader must be rewound after sniffing
			all, _ := io.ReadAll(got.File)
			if int64(len(all)) != tt.raw.Size {
				t.Errorf("expected to read %d bytes after validation, got %d", tt.raw.Size, len(all))
			}
		})
	}
}

func TestValidator_Rejects(t *testing.T) {
	v := NewValidator(testLimit)

	tooBig := upload("big.pdf", pdfBytes(1024))
	tooBig.Size = testLimit + 1

	noTitle := upload("a.pdf", pdfBytes(100))
	noTitle.Metadata.Title = "   "

	noSubject := upload("a.pdf", pdfBytes(100))
	noSubject.Metadata.Subject = ""

	longCategory := upload("a.pdf", pdfBytes(100))
	longCategory.Metadata.Category = strings.Repeat("c", 256)

	transport := upload("a.pdf", pdfBytes(100))
	transport.Err = errors.New("unexpected EOF")

	tests := []struct {
		name   string
		raw    RawUpload
		field  string
		reason string
	}{
		{"missing file", RawUpload{Filename: "a.pdf"}, "file", "no file uploaded"},
		{"transport error", transport, "file", "file upload failed"},
		{"exe extension", upload("setup.exe", exeBytes()), "file", "only PDF and DOCX"},
		{"legacy doc", upload("old.doc", docxBytes(t)), "file", "only PDF and DOCX"},
		{"no extension", upload("README", pdfBytes(100)), "file", "only PDF and DOCX"},
		{"exe renamed to pdf", upload("setup.pdf", exeBytes()), "file", "does not match"},
		{"zip renamed to pdf", upload("a.pdf", zipBytes(t, "a.txt")), "file", "does not match"},
		{"pdf renamed to docx", upload("a.docx", pdfBytes(100)), "file", "does not match"},
		{"text renamed to docx", upload("a.docx", []byte("hello world, plain text")), "file", "does not match"},
		{"too large", tooBig, "file", "maximum allowed size"},
		{"blank title", noTitle, "title", "title is required"},
		{"missing subject", noSubject, "subject", "subject is required"},
		{"category too long", longCategory, "category", "at most 255"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.raw)
			var appErr *apperr.Error
			if !errors.As(err, &appErr) || appErr.Kind != apperr.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
			if appErr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, appErr.Field)
			}
			if !strings.Contains(appErr.Reason, tt.reason) {
				t.Errorf("expected reason containing %q, got %q", tt.reason, appErr.Reason)
			}
		})
	}
}

func TestValidator_CheckOrder(t *testing.T) {
	v := NewValidator(testLimit)

	t.Run("extension is checked before size", func(t *testing.T) {
		raw := upload("setup.exe", exeBytes())
		raw.Size = testLimit * 2
		_, err := v.Validate(raw)
		if errors.Is(err, apperr.ErrFileTooLarge) {
			t.Fatal("expected extension failure, got size failure")
		}
	})

	t.Run("content is checked before fields", func(t *testing.T) {
		raw := upload("a.pdf", exeBytes())
		raw.Metadata.Title = ""
		_, err := v.Validate(raw)
		var appErr *apperr.Error
		if !errors.As(err, &appErr) || appErr.Field != "file" {
			t.Fatalf("expected file error, got %v", err)
		}
	})

	t.Run("size failure unwraps to sentinel", func(t *testing.T) {
		raw := upload("a.pdf", pdfBytes(100))
		raw.Size = testLimit + 1
		raw.Metadata.Title = ""
		_, err := v.Validate(raw)
		if !errors.Is(err, apperr.ErrFileTooLarge) {
			t.Fatalf("expected ErrFileTooLarge, got %v", err)
		}
	})
}

func TestValidatePatch(t *testing.T) {
	str := func(s string) *string { return &s }

	t.Run("trims and keeps present fields", func(t *testing.T) {
		got, err := ValidatePatch(database.ArtifactPatch{Title: str("  Final  "), Description: str("")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if *got.Title != "Final" {
			t.Errorf("expected trimmed title, got %q", *got.Title)
		}
		if got.Description == nil || *got.Description != "" {
			t.Error("expected empty description to be kept")
		}
		if got.Subject != nil {
			t.Error("expected absent subject to stay absent")
		}
	})

	tests := []struct {
		name  string
		patch database.ArtifactPatch
		field string
	}{
		{"empty patch", database.ArtifactPatch{}, "patch"},
		{"blank title", database.ArtifactPatch{Title: str("  ")}, "title"},
		{"blank subject", database.ArtifactPatch{Subject: str("")}, "subject"},
		{"long description", database.ArtifactPatch{Description: str(strings.Repeat("d", 2001))}, "description"},
		{"long semester", database.ArtifactPatch{Semester: str(strings.Repeat("s", 256))}, "semester"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidatePatch(tt.patch)
			var appErr *apperr.Error
			if !errors.As(err, &appErr) || appErr.Field != tt.field {
				t.Errorf("expected validation error on %q, got %v", tt.field, err)
			}
		})
	}
}
