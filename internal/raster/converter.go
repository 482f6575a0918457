// Package raster converts PDF documents into preview images. Conversion
// failures are reported as values, not Go errors, so callers always get a
// usable result to inspect.
package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"
	"sync"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"

	apperrors "resumind/internal/errors"
	"resumind/internal/types"
)

// renderDPI renders at 4x the 72 DPI PDF base resolution.
const renderDPI = 288

// Fixed error messages surfaced in Result.Error. The two capability
// messages are distinct from the generic conversion failure so callers and
// tests can tell them apart.
const (
	errSurfaceUnavailable = "Image render surface not supported"
	errEncodeFailed       = "Failed to encode image"
)

// Surface encodes a rendered page image into its final byte format.
type Surface interface {
	Encode(w io.Writer, img image.Image) error
}

// Quality is optionally implemented by surfaces that support a
// high-quality mode. Configuring it never fails the conversion.
type Quality interface {
	SetHighQuality(enabled bool)
}

// PNGSurface encodes pages as PNG.
type PNGSurface struct {
	level png.CompressionLevel
}

// NewPNGSurface creates the default PNG encoding surface.
func NewPNGSurface() *PNGSurface {
	return &PNGSurface{level: png.DefaultCompression}
}

func (s *PNGSurface) Encode(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: s.level}
	return enc.Encode(w, img)
}

func (s *PNGSurface) SetHighQuality(enabled bool) {
	if enabled {
		s.level = png.BestCompression
	} else {
		s.level = png.DefaultCompression
	}
}

// Result is the outcome of one conversion. Exactly one of
// {File and ImageURL populated} or {Error populated} holds.
type Result struct {
	ImageURL string          `json:"imageUrl"`
	File     *types.FileBlob `json:"file,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Converter renders the first page of PDF documents as preview images.
// Concurrent conversions are independent; only the one-time engine
// initialization is shared.
type Converter struct {
	surface Surface
	dpi     float64
	logger  *apperrors.Logger

	initOnce sync.Once
}

// NewConverter creates a converter rendering at the given DPI. A zero dpi
// falls back to the default 4x resolution. surface may be nil, in which
// case every conversion reports the surface-unavailable error.
func NewConverter(surface Surface, dpi float64, logger *apperrors.Logger) *Converter {
	if dpi <= 0 {
		dpi = renderDPI
	}
	return &Converter{surface: surface, dpi: dpi, logger: logger}
}

// Convert renders the first page of f. It never returns a Go error; all
// failures are reported through Result.Error.
func (c *Converter) Convert(ctx context.Context, f types.File) Result {
	c.initOnce.Do(func() {
		if c.logger != nil {
			c.logger.Debug("Rasterizer initialized", "dpi", c.dpi)
		}
	})

	data, err := f.Bytes(ctx)
	if err != nil {
		return c.fail(f, fmt.Sprintf("Failed to convert PDF: %v", err))
	}

	if err := precheckPDF(data); err != nil {
		return c.fail(f, fmt.Sprintf("Failed to convert PDF: %v", err))
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return c.fail(f, fmt.Sprintf("Failed to convert PDF: %v", err))
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return c.fail(f, "Failed to convert PDF: document has no pages")
	}

	img, err := doc.ImageDPI(0, c.dpi)
	if err != nil {
		return c.fail(f, fmt.Sprintf("Failed to convert PDF: %v", err))
	}

	if c.surface == nil {
		return c.fail(f, errSurfaceUnavailable)
	}
	if q, ok := c.surface.(Quality); ok {
		q.SetHighQuality(true)
	}

	var buf bytes.Buffer
	if err := c.surface.Encode(&buf, img); err != nil {
		return c.fail(f, errEncodeFailed)
	}

	blob := &types.FileBlob{
		FileName: DerivedImageName(f.Name()),
		MIME:     "image/png",
		Data:     buf.Bytes(),
	}

	return Result{
		ImageURL: dataURL(blob.MIME, blob.Data),
		File:     blob,
	}
}

func (c *Converter) fail(f types.File, msg string) Result {
	if c.logger != nil {
		c.logger.Warn("PDF conversion failed", "file", f.Name(), "reason", msg)
	}
	return Result{Error: msg}
}

// precheckPDF validates the document structure before handing it to the
// render engine, so corrupt input fails with a parse error rather than a
// renderer crash.
func precheckPDF(data []byte) error {
	_, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	return err
}

// DerivedImageName maps the source file name to the preview image name:
// a ".pdf" suffix is swapped for ".png" case-insensitively, any other
// name gets ".png" appended.
func DerivedImageName(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return name[:len(name)-len(".pdf")] + ".png"
	}
	return name + ".png"
}

// dataURL packages raw bytes as a dereferenceable data: URL.
func dataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
