// Package raster converts source documents into the ordered page-image
// sequence handed to the vision model. Images pass through untouched; PDFs
// are rendered one PNG per page via poppler's pdftoppm.
package raster

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pactwatch/contract-cli/internal/model"
)

// UnsupportedFormatError reports a document type the rasterizer cannot
// handle. Terminal for the call: retrying without converting the document
// cannot succeed.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("raster: unsupported document format %q (supported: pdf, jpg, jpeg, png, gif, webp)", e.Ext)
}

// imageMediaTypes maps supported image extensions to their media type.
var imageMediaTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Rasterizer turns a RawDocument into its canonical page sequence.
type Rasterizer interface {
	Rasterize(ctx context.Context, doc model.RawDocument) ([]model.PageImage, error)
}

// New returns the default Rasterizer: image passthrough plus a pdftoppm
// renderer for PDFs. binPath empty means "pdftoppm" on PATH; dpi <= 0
// defaults to 200.
func New(binPath string, dpi int) Rasterizer {
	return &docRasterizer{pdf: newPdfToPPM(binPath, dpi)}
}

type docRasterizer struct {
	pdf *pdfToPPM
}

func (r *docRasterizer) Rasterize(ctx context.Context, doc model.RawDocument) ([]model.PageImage, error) {
	ext := strings.ToLower(filepath.Ext(doc.Name))
	if ext == "" {
		// No declared type; sniff the bytes before giving up.
		ext = mimetype.Detect(doc.Data).Extension()
	}

	if mediaType, ok := imageMediaTypes[ext]; ok {
		// Single page, original bytes unchanged. No re-encoding.
		return []model.PageImage{{Index: 1, MediaType: mediaType, Data: doc.Data}}, nil
	}

	if ext == ".pdf" {
		return r.pdf.renderPages(ctx, doc.Data)
	}

	return nil, &UnsupportedFormatError{Ext: ext}
}
