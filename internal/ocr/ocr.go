// Package ocr extracts plain text from contract documents. The
// refinement pass compares extracted fields against this text.
package ocr

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/pactwatch/contract-cli/internal/model"
)

// Extractor extracts text content from a source document.
type Extractor interface {
	ExtractText(ctx context.Context, doc model.RawDocument) (string, error)
}

// textExts are formats whose bytes already are text.
var textExts = map[string]bool{
	".txt": true,
	".md":  true,
}

// New creates an Extractor that shells out to pdftotext for PDFs and
// passes plain-text formats through. Other formats yield an empty string;
// refinement is simply skipped for them.
func New(binPath string) Extractor {
	return &docText{pdf: newPdfToText(binPath)}
}

type docText struct {
	pdf *pdfToText
}

func (d *docText) ExtractText(ctx context.Context, doc model.RawDocument) (string, error) {
	ext := strings.ToLower(filepath.Ext(doc.Name))
	switch {
	case ext == ".pdf":
		return d.pdf.extract(ctx, doc.Data)
	case textExts[ext]:
		return string(doc.Data), nil
	default:
		return "", nil
	}
}

func writeTempPDF(data []byte) (string, func(), error) {
	dir, err := os.MkdirTemp("", "contract-ocr-*")
	if err != nil {
		return "", nil, err
	}
	path := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		os.RemoveAll(dir)
		return "", nil, err
	}
	return path, func() { os.RemoveAll(dir) }, nil
}
