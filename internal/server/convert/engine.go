// Package convert turns stored PDF and DOCX artifacts into the other format
// by driving external tools. Outputs are written under the staging root only;
// the source file is never modified.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"resourcehub/internal/server/apperr"
	"resourcehub/internal/server/database"
	"resourcehub/internal/server/metrics"
	"resourcehub/internal/server/storage"
)

// Direction is a requested conversion.
type Direction string

const (
	PDFToDOCX Direction = "pdf-to-docx"
	DOCXToPDF Direction = "docx-to-pdf"
)

// ParseDirection parses a conversion_type value.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case PDFToDOCX, DOCXToPDF:
		return d, nil
	}
	return "", apperr.Validation("conversion_type",
		fmt.Sprintf("conversion_type must be %q or %q", PDFToDOCX, DOCXToPDF))
}

// From returns the media kind the direction converts from.
func (d Direction) From() database.MediaKind {
	if d == DOCXToPDF {
		return database.MediaDOCX
	}
	return database.MediaPDF
}

// To returns the media kind the direction produces.
func (d Direction) To() database.MediaKind {
	if d == DOCXToPDF {
		return database.MediaPDF
	}
	return database.MediaDOCX
}

// Source is the permanent artifact being converted.
type Source struct {
	Path  string
	Title string
	Kind  database.MediaKind
}

// Result describes a staged conversion output.
type Result struct {
	Path string
	Kind database.MediaKind
	Size int64 // measured from the written file
}

// Engine converts a source artifact into a staged artifact. Implementations
// block until the conversion has finished or failed.
type Engine interface {
	Convert(ctx context.Context, src Source, dir Direction) (*Result, error)
}

// DocxToHTML renders a DOCX file to an HTML file.
type DocxToHTML interface {
	ToHTML(ctx context.Context, srcPath, htmlPath string) error
}

// HTMLToPDF renders HTML bytes to PDF bytes.
type HTMLToPDF interface {
	RenderPDF(ctx context.Context, html []byte) ([]byte, error)
}

// PDFToDocx converts a PDF file to a DOCX file.
type PDFToDocx interface {
	Convert(ctx context.Context, srcPath, destPath string) error
}

// Prober is implemented by tools that can report whether they are installed.
type Prober interface {
	Probe(ctx context.Context) (string, error)
}

// Converter is the Engine backed by external tools.
type Converter struct {
	staging  *storage.Staging
	docxHTML DocxToHTML
	htmlPDF  HTMLToPDF
	pdfDocx  PDFToDocx
	timeout  time.Duration
}

// NewConverter creates a Converter writing into staging. A zero timeout
// leaves conversions bounded only by the caller's context.
func NewConverter(staging *storage.Staging, docxHTML DocxToHTML, htmlPDF HTMLToPDF, pdfDocx PDFToDocx, timeout time.Duration) *Converter {
	return &Converter{
		staging:  staging,
		docxHTML: docxHTML,
		htmlPDF:  htmlPDF,
		pdfDocx:  pdfDocx,
		timeout:  timeout,
	}
}

// Convert checks the direction against the source kind before any tool runs,
// then produces exactly one staged file. On failure nothing is left behind.
func (c *Converter) Convert(ctx context.Context, src Source, dir Direction) (*Result, error) {
	if dir != PDFToDOCX && dir != DOCXToPDF {
		return nil, apperr.InvalidDirection(fmt.Sprintf("unknown conversion direction %q", dir))
	}
	if src.Kind != dir.From() {
		metrics.ConversionsTotal.WithLabelValues(string(dir), "invalid_direction").Inc()
		return nil, apperr.InvalidDirection(
			fmt.Sprintf("%s requires a %s source, but the file is %s", dir, dir.From(), src.Kind))
	}
	if _, err := os.Stat(src.Path); err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("source file is missing from storage")
		}
		return nil, apperr.Storage("failed to stat source file", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	dest, err := c.staging.NewPath(src.Title, dir.To().Extension())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	switch dir {
	case DOCXToPDF:
		err = c.docxToPDF(ctx, src.Path, dest)
	case PDFToDOCX:
		err = c.pdfToDocx(ctx, src.Path, dest)
	}
	metrics.ConversionDuration.WithLabelValues(string(dir)).Observe(time.Since(start).Seconds())

	if err == nil {
		var info os.FileInfo
		info, err = os.Stat(dest)
		switch {
		case err != nil:
			err = apperr.ConversionFailed("converter produced no output file", err)
		case info.Size() == 0:
			err = apperr.ConversionFailed("converter produced an empty file", nil)
		default:
			metrics.ConversionsTotal.WithLabelValues(string(dir), "success").Inc()
			return &Result{Path: dest, Kind: dir.To(), Size: info.Size()}, nil
		}
	}

	err = normalize(ctx, err)
	if rmErr := os.Remove(dest); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		slog.Error("failed to remove partial conversion output", "path", dest, "error", rmErr)
	}
	result := "failure"
	if apperr.Is(err, apperr.KindConversionCapability) {
		result = "capability"
	}
	metrics.ConversionsTotal.WithLabelValues(string(dir), result).Inc()
	return nil, err
}

// docxToPDF goes DOCX -> HTML -> PDF. The intermediate HTML is always removed.
func (c *Converter) docxToPDF(ctx context.Context, srcPath, dest string) error {
	htmlPath := strings.TrimSuffix(dest, filepath.Ext(dest)) + ".html"
	defer func() {
		if err := os.Remove(htmlPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to remove intermediate html", "path", htmlPath, "error", err)
		}
	}()

	if err := c.docxHTML.ToHTML(ctx, srcPath, htmlPath); err != nil {
		return err
	}
	html, err := os.ReadFile(htmlPath)
	if err != nil {
		return apperr.ConversionFailed("intermediate HTML was not produced", err)
	}

	pdf, err := c.htmlPDF.RenderPDF(ctx, html)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dest, pdf, 0o644); err != nil {
		return apperr.Storage("failed to write converted PDF", err)
	}
	return nil
}

func (c *Converter) pdfToDocx(ctx context.Context, srcPath, dest string) error {
	return c.pdfDocx.Convert(ctx, srcPath, dest)
}

// normalize makes sure every failure carries a conversion or storage kind.
func normalize(ctx context.Context, err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return apperr.ConversionFailed("conversion timed out", err)
	}
	return apperr.ConversionFailed("conversion failed", err)
}

// ToolStatus is the outcome of probing one external tool.
type ToolStatus struct {
	Tool   string
	Detail string
	Err    error
}

// Available reports whether the tool is usable.
func (s ToolStatus) Available() bool { return s.Err == nil }

// Probe checks every configured tool that supports probing.
func (c *Converter) Probe(ctx context.Context) []ToolStatus {
	tools := []struct {
		name string
		tool any
	}{
		{"pandoc", c.docxHTML},
		{"wkhtmltopdf", c.htmlPDF},
		{"pdf2docx", c.pdfDocx},
	}

	statuses := make([]ToolStatus, 0, len(tools))
	for _, t := range tools {
		p, ok := t.tool.(Prober)
		if !ok {
			statuses = append(statuses, ToolStatus{Tool: t.name, Detail: "not probeable"})
			continue
		}
		detail, err := p.Probe(ctx)
		statuses = append(statuses, ToolStatus{Tool: t.name, Detail: detail, Err: err})
	}
	return statuses
}
