package cli

import (
	"os"
	"path/filepath"
	"testing"

	"resourcehub/internal/server/convert"
)

func setupTestFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		t.Fatalf("failed to create test file %s: %v", name, err)
	}
	return path
}

func assertValidationError(t *testing.T, err error, expectedArg string, expectedCause string) {
	t.Helper()
	validationErr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	if expectedArg != "" && validationErr.Arg != expectedArg {
		t.Errorf("expected Arg to be %q, got %q", expectedArg, validationErr.Arg)
	}
	if expectedCause != "" && validationErr.Cause != expectedCause {
		t.Errorf("expected Cause to be %q, got %q", expectedCause, validationErr.Cause)
	}
}

// Tests

func TestParseArgs(t *testing.T) {
	t.Run("empty args returns error", func(t *testing.T) {
		result, err := ParseArgs([]string{})

		if err == nil {
			t.Fatal("expected error for empty args")
		}
		if result != nil {
			t.Error("expected nil result for empty args")
		}
		assertValidationError(t, err, "<command>", "no command provided")
	})

	t.Run("unknown command", func(t *testing.T) {
		_, err := ParseArgs([]string{"upload"})
		assertValidationError(t, err, "upload", "unknown command")
	})

	t.Run("doctor", func(t *testing.T) {
		result, err := ParseArgs([]string{"doctor"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Kind != CmdDoctor {
			t.Errorf("expected CmdDoctor, got %v", result.Kind)
		}
	})

	t.Run("doctor rejects extra args", func(t *testing.T) {
		_, err := ParseArgs([]string{"doctor", "now"})
		assertValidationError(t, err, "now", "")
	})

	t.Run("convert pdf", func(t *testing.T) {
		src := setupTestFile(t, "notes.pdf")

		result, err := ParseArgs([]string{"convert", src, "pdf-to-docx"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Kind != CmdConvert {
			t.Errorf("expected CmdConvert, got %v", result.Kind)
		}
		if result.Source != src {
			t.Errorf("expected source %s, got %s", src, result.Source)
		}
		if result.Direction != convert.PDFToDOCX {
			t.Errorf("expected %s, got %s", convert.PDFToDOCX, result.Direction)
		}
		if result.StagingDir != "" {
			t.Errorf("expected empty staging dir, got %s", result.StagingDir)
		}
	})

	t.Run("convert with staging dir and messy path", func(t *testing.T) {
		src := setupTestFile(t, "notes.docx")
		messy := filepath.Join(filepath.Dir(src), ".", "notes.docx")

		result, err := ParseArgs([]string{"convert", messy, "DOCX-TO-PDF", "/tmp/out/"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.Source != src {
			t.Errorf("expected cleaned path %s, got %s", src, result.Source)
		}
		if result.StagingDir != "/tmp/out" {
			t.Errorf("expected /tmp/out, got %s", result.StagingDir)
		}
	})

	t.Run("convert direction must match file", func(t *testing.T) {
		src := setupTestFile(t, "notes.pdf")
		_, err := ParseArgs([]string{"convert", src, "docx-to-pdf"})
		assertValidationError(t, err, src, "docx-to-pdf needs a .docx file")
	})

	t.Run("convert unknown direction", func(t *testing.T) {
		src := setupTestFile(t, "notes.pdf")
		_, err := ParseArgs([]string{"convert", src, "pdf-to-txt"})
		assertValidationError(t, err, "pdf-to-txt", "")
	})

	t.Run("convert nonexistent file", func(t *testing.T) {
		_, err := ParseArgs([]string{"convert", "/nonexistent/path/file.pdf", "pdf-to-docx"})
		assertValidationError(t, err, "", "not found or not accessible")
	})

	t.Run("convert directory", func(t *testing.T) {
		_, err := ParseArgs([]string{"convert", t.TempDir(), "pdf-to-docx"})
		assertValidationError(t, err, "", "not a regular file")
	})

	t.Run("token", func(t *testing.T) {
		result, err := ParseArgs([]string{"token", "42", "--admin"})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if result.UserID != 42 || !result.Admin {
			t.Errorf("expected admin user 42, got %+v", result)
		}
	})

	t.Run("token bad id", func(t *testing.T) {
		_, err := ParseArgs([]string{"token", "-3"})
		assertValidationError(t, err, "-3", "user id must be a positive integer")
	})

	t.Run("token unknown flag", func(t *testing.T) {
		_, err := ParseArgs([]string{"token", "3", "--root"})
		assertValidationError(t, err, "--root", "unknown flag")
	})
}

func TestValidationError(t *testing.T) {
	t.Run("error message format", func(t *testing.T) {
		err := &ValidationError{
			Arg:   "notes.pdf",
			Cause: "file not found",
		}

		expected := `invalid argument "notes.pdf": file not found`
		if err.Error() != expected {
			t.Errorf("expected error message %q, got %q", expected, err.Error())
		}
	})
}
