package service

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resourcehub/internal/server/apperr"
	"resourcehub/internal/server/database"
)

func TestUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("stores a valid pdf", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.uploadMidterm(t)

		assert.NotZero(t, a.ID)
		assert.Equal(t, database.MediaPDF, a.MediaKind)
		assert.Equal(t, 0, a.DownloadCount)
		assert.Equal(t, int64(2097152), a.ByteSize)
		assert.Equal(t, owner.UserID, a.OwnerID)
		assert.Len(t, a.Checksum, 64)

		info, err := os.Stat(a.StoragePath)
		require.NoError(t, err)
		assert.Equal(t, a.ByteSize, info.Size())
	})

	t.Run("requires a user", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.Upload(ctx, Actor{}, pdfUpload(1024, "Midterm", "CS101"))
		assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
		assert.Zero(t, countFiles(t, env.storageDir))
	})

	t.Run("rejected upload writes nothing", func(t *testing.T) {
		env := newTestEnv(t)
		raw := pdfUpload(1024, "Midterm", "CS101")
		raw.Filename = "setup.exe"

		_, err := env.svc.Upload(ctx, owner, raw)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
		assert.Zero(t, countFiles(t, env.storageDir))
	})

	t.Run("missing subject is reported", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.Upload(ctx, owner, pdfUpload(1024, "Midterm", "  "))

		var appErr *apperr.Error
		require.True(t, errors.As(err, &appErr))
		assert.Equal(t, "subject", appErr.Field)
	})

	t.Run("declared size below real size is still capped", func(t *testing.T) {
		env := newTestEnv(t)
		raw := pdfUpload((10<<20)+10, "Midterm", "CS101")
		raw.Size = 1024

		_, err := env.svc.Upload(ctx, owner, raw)
		assert.ErrorIs(t, err, apperr.ErrFileTooLarge)
		assert.Zero(t, countFiles(t, env.storageDir))
	})

	t.Run("record failure removes stored bytes", func(t *testing.T) {
		env := newTestEnv(t)
		env.repo.createErr = errors.New("connection refused")

		_, err := env.svc.Upload(ctx, owner, pdfUpload(1024, "Midterm", "CS101"))
		assert.True(t, apperr.Is(err, apperr.KindPersistence))
		assert.Zero(t, countFiles(t, env.storageDir))
	})
}

func TestDownload(t *testing.T) {
	ctx := context.Background()

	t.Run("two users downloading count twice", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.uploadMidterm(t)

		for _, user := range []Actor{{UserID: 7}, {UserID: 8}} {
			d, err := env.svc.Download(ctx, user, a.ID)
			require.NoError(t, err)
			n, _ := io.Copy(io.Discard, d.File)
			d.File.Close()
			assert.Equal(t, a.ByteSize, n)
			assert.Equal(t, a.ByteSize, d.Size)
			assert.Equal(t, "Midterm.pdf", d.FileName)
		}

		got, err := env.svc.Get(ctx, owner, a.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.DownloadCount)

		records := env.repo.recordsFor(a.ID)
		require.Len(t, records, 2)
		assert.Equal(t, int64(7), records[0].UserID)
		assert.Equal(t, int64(8), records[1].UserID)
	})

	t.Run("missing bytes are not counted", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.uploadMidterm(t)
		require.NoError(t, os.Remove(a.StoragePath))

		_, err := env.svc.Download(ctx, owner, a.ID)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))

		got, _ := env.svc.Get(ctx, owner, a.ID)
		assert.Equal(t, 0, got.DownloadCount)
	})

	t.Run("history failure is a persistence error", func(t *testing.T) {
		env := newTestEnv(t)
		a := env.uploadMidterm(t)
		env.repo.appendErr = errors.New("disk full")

		_, err := env.svc.Download(ctx, owner, a.ID)
		assert.True(t, apperr.Is(err, apperr.KindPersistence))
	})

	t.Run("unknown artifact", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.svc.Download(ctx, owner, 404)
		assert.True(t, apperr.Is(err, apperr.KindNotFound))
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Midterm", "Midterm"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\notes`, "notes"},
		{`Say "hi"`, "Say hi"},
		{"", "download"},
		{"line\nbreak", "linebreak"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeFilename(tt.input))
		})
	}
}
