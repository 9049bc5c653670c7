package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"resourcehub/internal/server/apperr"
)

// successMarker is printed on stdout by the PDF to DOCX helper script.
const successMarker = "SUCCESS"

// waitDelay bounds how long we wait for pipes to drain after a killed tool.
const waitDelay = 5 * time.Second

// Pandoc converts DOCX documents to standalone HTML.
type Pandoc struct {
	Path string
}

// ToHTML writes an HTML rendering of srcPath to htmlPath.
func (p *Pandoc) ToHTML(ctx context.Context, srcPath, htmlPath string) error {
	_, stderr, err := runTool(ctx, nil, p.Path,
		srcPath, "--from", "docx", "--to", "html5", "--standalone", "--output", htmlPath)
	if err != nil {
		return classify(ctx, "pandoc", err, stderr)
	}
	return nil
}

// Probe reports the installed pandoc version.
func (p *Pandoc) Probe(ctx context.Context) (string, error) {
	return probeVersion(ctx, "pandoc", p.Path, "--version")
}

// Wkhtmltopdf renders HTML to PDF. HTML is fed on stdin and PDF bytes are
// read back from stdout.
type Wkhtmltopdf struct {
	Path string
}

// The HTML comes from user documents, so it may not read local files or run scripts.
var wkhtmltopdfArgs = []string{
	"--quiet",
	"--disable-local-file-access",
	"--disable-javascript",
	"-", "-",
}

// RenderPDF converts HTML bytes to PDF bytes.
func (w *Wkhtmltopdf) RenderPDF(ctx context.Context, html []byte) ([]byte, error) {
	stdout, stderr, err := runTool(ctx, bytes.NewReader(html), w.Path, wkhtmltopdfArgs...)
	if err != nil {
		return nil, classify(ctx, "wkhtmltopdf", err, stderr)
	}
	if !bytes.HasPrefix(stdout, []byte("%PDF")) {
		return nil, apperr.ConversionFailed("wkhtmltopdf did not produce a PDF document", nil)
	}
	return stdout, nil
}

// Probe reports the installed wkhtmltopdf version.
func (w *Wkhtmltopdf) Probe(ctx context.Context) (string, error) {
	return probeVersion(ctx, "wkhtmltopdf", w.Path, "--version")
}

// PDF2Docx runs the out-of-process PDF to DOCX helper:
//
//	<python> <script> <source.pdf> <dest.docx>
//
// The helper must print SUCCESS on stdout and leave the destination file behind.
type PDF2Docx struct {
	Python string
	Script string
}

// Convert converts srcPath to a DOCX at destPath.
func (p *PDF2Docx) Convert(ctx context.Context, srcPath, destPath string) error {
	if _, err := os.Stat(p.Script); err != nil {
		return apperr.Capability("pdf2docx", fmt.Errorf("helper script %s: %w", p.Script, err))
	}

	stdout, stderr, err := runTool(ctx, nil, p.Python, p.Script, srcPath, destPath)
	if err != nil {
		if missingModule(stderr) {
			return apperr.Capability("pdf2docx", errors.New(lastLine(stderr)))
		}
		return classify(ctx, "pdf2docx", err, stderr)
	}
	if !strings.Contains(string(stdout), successMarker) {
		return apperr.ConversionFailed(
			fmt.Sprintf("pdf2docx did not report success: %s", snippet(string(stdout)+" "+stderr)), nil)
	}
	if info, err := os.Stat(destPath); err != nil || !info.Mode().IsRegular() {
		return apperr.ConversionFailed("pdf2docx reported success but produced no file", err)
	}
	return nil
}

// Probe checks the interpreter, the helper script and the pdf2docx module.
func (p *PDF2Docx) Probe(ctx context.Context) (string, error) {
	if _, err := os.Stat(p.Script); err != nil {
		return "", apperr.Capability("pdf2docx", fmt.Errorf("helper script %s: %w", p.Script, err))
	}
	version, err := probeVersion(ctx, "python", p.Python, "--version")
	if err != nil {
		return "", err
	}
	_, stderr, err := runTool(ctx, nil, p.Python, "-c", "import pdf2docx")
	if err != nil {
		if missingModule(stderr) {
			return "", apperr.Capability("pdf2docx", errors.New(lastLine(stderr)))
		}
		return "", classify(ctx, "pdf2docx", err, stderr)
	}
	return version + ", script " + p.Script, nil
}

// runTool runs name with args under ctx and captures both output streams.
func runTool(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	slog.Debug("converter tool finished",
		"tool", name,
		"duration", time.Since(start),
		"error", err,
	)
	return stdout.Bytes(), stderr.String(), err
}

// classify maps a tool run error to a capability or failure error.
// A tool that cannot be started is a capability problem; anything that
// started and then failed or timed out is a conversion failure.
func classify(ctx context.Context, tool string, err error, stderr string) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperr.ConversionFailed(fmt.Sprintf("%s timed out", tool), err)
	case errors.Is(ctx.Err(), context.Canceled):
		return apperr.ConversionFailed(fmt.Sprintf("%s was cancelled", tool), err)
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return apperr.Capability(tool, err)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := snippet(stderr)
		if msg == "" {
			msg = exitErr.String()
		}
		return apperr.ConversionFailed(fmt.Sprintf("%s failed: %s", tool, msg), err)
	}
	return apperr.ConversionFailed(fmt.Sprintf("%s failed", tool), err)
}

func probeVersion(ctx context.Context, tool, path string, args ...string) (string, error) {
	stdout, stderr, err := runTool(ctx, nil, path, args...)
	if err != nil {
		if ctx.Err() == nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return "", apperr.Capability(tool, fmt.Errorf("%s: %w", snippet(stderr), err))
			}
		}
		return "", classify(ctx, tool, err, stderr)
	}
	out := strings.TrimSpace(string(stdout))
	if out == "" {
		out = strings.TrimSpace(stderr)
	}
	return firstLine(out), nil
}

func missingModule(stderr string) bool {
	return strings.Contains(stderr, "ModuleNotFoundError") || strings.Contains(stderr, "No module named")
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 300 {
		s = s[len(s)-300:]
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
