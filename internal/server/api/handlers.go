package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"resourcehub/internal/server/apperr"
	"resourcehub/internal/server/convert"
	"resourcehub/internal/server/database"
	"resourcehub/internal/server/ingest"
	"resourcehub/internal/server/service"
)

// HealthChecker reports whether the database is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ToolProber reports the availability of the conversion tools. HandleHealth
// calls it on every request, so pass a *convert.StatusCache rather than
// something that starts processes.
type ToolProber interface {
	Probe(ctx context.Context) []convert.ToolStatus
}

// Handler contains the HTTP handlers for the resource hub API.
type Handler struct {
	svc   *service.ArtifactService
	db    HealthChecker
	tools ToolProber
}

// NewHandler creates a new handler. tools may be nil.
func NewHandler(svc *service.ArtifactService, db HealthChecker, tools ToolProber) *Handler {
	return &Handler{svc: svc, db: db, tools: tools}
}

type convertRequest struct {
	ConversionType string `json:"conversion_type"`
}

type tempFileRequest struct {
	TempFilePath string `json:"temp_file_path"`
}

// HandleUpload handles POST /api/files.
// Accepts a multipart form with a "file" field and the metadata fields.
func (h *Handler) HandleUpload(c echo.Context) error {
	// A chunked body has no Content-Length, so BodyLimit can only stop it
	// while the form is being read.
	_, parseErr := c.MultipartForm()
	var httpErr *echo.HTTPError
	if errors.As(parseErr, &httpErr) && httpErr.Code == http.StatusRequestEntityTooLarge {
		return mapServiceError(c, apperr.TooLarge(h.svc.MaxUploadSize()))
	}

	raw := ingest.RawUpload{
		Metadata: ingest.Metadata{
			Title:       c.FormValue("title"),
			Description: c.FormValue("description"),
			Category:    c.FormValue("category"),
			Subject:     c.FormValue("subject"),
			Semester:    c.FormValue("semester"),
		},
	}

	var err error
	if raw.Metadata.PositionX, err = formInt(c, "position_x"); err != nil {
		return mapServiceError(c, err)
	}
	if raw.Metadata.PositionY, err = formInt(c, "position_y"); err != nil {
		return mapServiceError(c, err)
	}

	fileHeader, err := c.FormFile("file")
	switch {
	case parseErr != nil:
		raw.Err = parseErr
	case errors.Is(err, http.ErrMissingFile):
		// leave raw.File nil so validation reports the missing file
	case err != nil:
		raw.Err = err
	default:
		src, openErr := fileHeader.Open()
		if openErr != nil {
			raw.Err = openErr
			break
		}
		defer src.Close()
		raw.File = src
		raw.Filename = fileHeader.Filename
		raw.Size = fileHeader.Size
	}

	artifact, err := h.svc.Upload(c.Request().Context(), actorFrom(c), raw)
	if err != nil {
		return mapServiceError(c, err)
	}
	return respond(c, http.StatusCreated, "file uploaded successfully", artifact)
}

// HandleList handles GET /api/files.
func (h *Handler) HandleList(c echo.Context) error {
	q := service.ListQuery{
		Category: c.QueryParam("category"),
		Subject:  c.QueryParam("subject"),
		Semester: c.QueryParam("semester"),
	}

	var err error
	if q.Page, err = queryInt(c, "page"); err != nil {
		return mapServiceError(c, err)
	}
	if q.PerPage, err = queryInt(c, "per_page"); err != nil {
		return mapServiceError(c, err)
	}
	if owner := c.QueryParam("owner"); owner != "" {
		if q.OwnerID, err = strconv.ParseInt(owner, 10, 64); err != nil {
			return mapServiceError(c, apperr.Validation("owner", "owner must be an integer"))
		}
	}

	res, err := h.svc.List(c.Request().Context(), actorFrom(c), q)
	if err != nil {
		return mapServiceError(c, err)
	}
	return respond(c, http.StatusOK, "files retrieved", res)
}

// HandleGet handles GET /api/files/:id.
func (h *Handler) HandleGet(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return mapServiceError(c, err)
	}

	artifact, err := h.svc.Get(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	return respond(c, http.StatusOK, "file retrieved", artifact)
}

// HandlePatch handles PATCH /api/files/:id.
// Updates metadata and board position; omitted fields are left as they are.
func (h *Handler) HandlePatch(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return mapServiceError(c, err)
	}

	var patch database.ArtifactPatch
	if err := c.Bind(&patch); err != nil {
		return mapServiceError(c, apperr.Validation("body", "request body must be a JSON object"))
	}

	artifact, err := h.svc.Patch(c.Request().Context(), actorFrom(c), id, patch)
	if err != nil {
		return mapServiceError(c, err)
	}
	return respond(c, http.StatusOK, "file updated", artifact)
}

// HandleDelete handles DELETE /api/files/:id.
func (h *Handler) HandleDelete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return mapServiceError(c, err)
	}

	if err := h.svc.Delete(c.Request().Context(), actorFrom(c), id); err != nil {
		return mapServiceError(c, err)
	}
	return respond(c, http.StatusOK, "file deleted", nil)
}

// HandleDownload handles GET /api/files/:id/download.
// Streams the stored bytes as an attachment and counts the download.
func (h *Handler) HandleDownload(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return mapServiceError(c, err)
	}

	d, err := h.svc.Download(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return mapServiceError(c, err)
	}
	defer d.File.Close()

	header := c.Response().Header()
	if d.Artifact.Checksum != "" {
		header.Set("ETag", strconv.Quote(d.Artifact.Checksum))
	}
	return streamAttachment(c, d.File, d.FileName, d.Artifact.MediaKind, d.Size)
}

// HandleConvert handles POST /api/files/:id/convert.
// The converted file is staged and not yet part of the repository.
func (h *Handler) HandleConvert(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return mapServiceError(c, err)
	}

	var req convertRequest
	if err := c.Bind(&req); err != nil {
		return mapServiceError(c, apperr.Validation("body", "request body must be a JSON object"))
	}

	staged, err := h.svc.Convert(c.Request().Context(), actorFrom(c), id, req.ConversionType)
	if err != nil {
		return mapServiceError(c, err)
	}
	return respond(c, http.StatusOK, "file converted", staged)
}

// HandleSaveConverted handles POST /api/files/:id/save-converted.
func (h *Handler) HandleSaveConverted(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return mapServiceError(c, err)
	}

	var req tempFileRequest
	if err := c.Bind(&req); err != nil {
		return mapServiceError(c, apperr.Validation("body", "request body must be a JSON object"))
	}
	if req.TempFilePath == "" {
		return mapServiceError(c, apperr.Validation("temp_file_path", "temp_file_path is required"))
	}

	artifact, err := h.svc.Promote(c.Request().Context(), actorFrom(c), id, req.TempFilePath)
	if err != nil {
		return mapServiceError(c, err)
	}
	return respond(c, http.StatusCreated, "converted file saved", artifact)
}

// HandleTempDownload handles GET /api/temp/download?temp_file_path=...
// Staged downloads are not counted.
func (h *Handler) HandleTempDownload(c echo.Context) error {
	path := c.QueryParam("temp_file_path")
	if path == "" {
		return mapServiceError(c, apperr.Validation("temp_file_path", "temp_file_path is required"))
	}

	d, err := h.svc.DownloadStaged(c.Request().Context(), actorFrom(c), path)
	if err != nil {
		return mapServiceError(c, err)
	}
	defer d.File.Close()

	return streamAttachment(c, d.File, d.FileName, d.MediaKind, d.Size)
}

// HandleTempCleanup handles POST /api/temp/cleanup.
func (h *Handler) HandleTempCleanup(c echo.Context) error {
	var req tempFileRequest
	if err := c.Bind(&req); err != nil {
		return mapServiceError(c, apperr.Validation("body", "request body must be a JSON object"))
	}
	if req.TempFilePath == "" {
		return mapServiceError(c, apperr.Validation("temp_file_path", "temp_file_path is required"))
	}

	if err := h.svc.Cleanup(c.Request().Context(), actorFrom(c), req.TempFilePath); err != nil {
		return mapServiceError(c, err)
	}
	return respond(c, http.StatusOK, "temporary file cleaned up", nil)
}

// HandlePin handles POST /api/files/:id/pin.
func (h *Handler) HandlePin(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return mapServiceError(c, err)
	}
	if err := h.svc.Pin(c.Request().Context(), actorFrom(c), id); err != nil {
		return mapServiceError(c, err)
	}
	return respond(c, http.StatusOK, "file pinned", nil)
}

// HandleUnpin handles DELETE /api/files/:id/pin.
func (h *Handler) HandleUnpin(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return mapServiceError(c, err)
	}
	if err := h.svc.Unpin(c.Request().Context(), actorFrom(c), id); err != nil {
		return mapServiceError(c, err)
	}
	return respond(c, http.StatusOK, "file unpinned", nil)
}

// HandleListPinned handles GET /api/pins.
func (h *Handler) HandleListPinned(c echo.Context) error {
	pinned, err := h.svc.ListPinned(c.Request().Context(), actorFrom(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return respond(c, http.StatusOK, "pinned files retrieved", echo.Map{"files": pinned})
}

// HandleHealth handles GET /health.
// Returns the health status of the server, including database connectivity
// and which converters are installed.
func (h *Handler) HandleHealth(c echo.Context) error {
	ctx := c.Request().Context()
	status := "healthy"
	dbStatus := "connected"

	if err := h.db.HealthCheck(ctx); err != nil {
		status = "degraded"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	converters := map[string]string{}
	if h.tools != nil {
		for _, s := range h.tools.Probe(ctx) {
			if s.Available() {
				converters[s.Tool] = s.Detail
			} else {
				converters[s.Tool] = fmt.Sprintf("unavailable: %v", s.Err)
			}
		}
	}

	return respond(c, http.StatusOK, status, echo.Map{
		"status":     status,
		"database":   dbStatus,
		"converters": converters,
	})
}

func streamAttachment(c echo.Context, r io.Reader, filename string, kind database.MediaKind, size int64) error {
	header := c.Response().Header()
	header.Set(echo.HeaderContentDisposition, mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	header.Set(echo.HeaderContentLength, strconv.FormatInt(size, 10))
	header.Set("X-Content-Type-Options", "nosniff")
	return c.Stream(http.StatusOK, kind.ContentType(), r)
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("id", "id must be a positive integer")
	}
	return id, nil
}

func formInt(c echo.Context, field string) (int, error) {
	return parseOptionalInt(field, c.FormValue(field))
}

func queryInt(c echo.Context, field string) (int, error) {
	return parseOptionalInt(field, c.QueryParam(field))
}

func parseOptionalInt(field, value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, apperr.Validation(field, field+" must be an integer")
	}
	return n, nil
}
