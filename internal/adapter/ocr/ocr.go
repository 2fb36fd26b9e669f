// Package ocr wraps a gRPC OCR engine — a separate model-serving process,
// the same shape the teacher codebase uses for its ml-worker connections
// (one shared grpc.ClientConn, dialed once at startup). For a PDF, the
// text layer of page one is read locally when present; otherwise the whole
// file is sent to the engine unchanged. The adapter does no rasterization
// and does not cut a PDF down to its first page before sending it.
package ocr

import (
	"context"
	"fmt"
	"os"

	"github.com/WessleyAI/wessley-mvp/internal/errkind"
	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// EngineClient is the narrow gRPC-client-shaped interface the adapter
// drives; the concrete implementation (engineclient.OCRClient, a unary
// client framed with protobuf wrapper types rather than a generated stub)
// is supplied by the caller.
type EngineClient interface {
	ExtractText(ctx context.Context, imageBytes []byte) (string, error)
}

var allowedMIME = map[string]bool{
	"application/pdf": true,
	"image/png":       true,
	"image/jpeg":       true,
	"image/tiff":       true,
}

// Adapter extracts text from an uploaded document.
type Adapter struct {
	engine EngineClient
}

// New constructs an Adapter around an already-dialed OCR engine client.
func New(engine EngineClient) *Adapter {
	return &Adapter{engine: engine}
}

// Extract reads the file at path, rejects unsupported MIME types as
// Permanent before ever dialing the engine, returns the page-one text
// layer of a PDF that has one, and otherwise sends the whole file to the
// engine and returns its text. An OCR engine that detects no
// text is not an error — it returns ("", nil), and the caller records a
// degraded result rather than failing the job. mimeHint is the ticket's
// declared mime_type; when set and unsupported, Extract refuses the file
// without even reading it. The file's sniffed MIME is checked regardless,
// since a caller's declared mime_type is only a hint, not a guarantee.
func (a *Adapter) Extract(ctx context.Context, path string, mimeHint string) (string, error) {
	if mimeHint != "" && !allowedMIME[mimeHint] {
		return "", errkind.New(errkind.Permanent, fmt.Errorf("ocr: unsupported mime type %s", mimeHint))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", errkind.New(errkind.Permanent, fmt.Errorf("ocr: read file: %w", err))
	}

	mt := mimetype.Detect(raw)
	if !allowedMIME[mt.String()] {
		return "", errkind.New(errkind.Permanent, fmt.Errorf("ocr: unsupported file type %s", mt.String()))
	}

	if mt.String() == "application/pdf" {
		// A PDF with a real text layer doesn't need the OCR engine at
		// all; extract it directly and only fall back to the engine
		// (which rasterizes and OCRs server-side) for scanned PDFs with
		// no embedded text.
		if text, err := firstPageText(path); err == nil && text != "" {
			return text, nil
		}
	}

	text, err := a.engine.ExtractText(ctx, raw)
	if err != nil {
		return "", errkind.New(errkind.Transient, fmt.Errorf("ocr: extract: %w", err))
	}
	return text, nil
}

// firstPageText reads the embedded text layer of page one of a PDF.
// Only the first page is processed, matching the original pipeline's
// single-page conversion.
func firstPageText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	if r.NumPage() < 1 {
		return "", fmt.Errorf("pdf has no pages")
	}
	page := r.Page(1)
	content, err := page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("read page 1 text: %w", err)
	}
	return content, nil
}
