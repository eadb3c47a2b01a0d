package raster

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/pactwatch/contract-cli/internal/model"
)

const defaultDPI = 200

// pdfToPPM renders PDF pages to PNG using the pdftoppm CLI tool, the same
// poppler renderer the rest of the toolchain leans on. Rendering is
// CPU-bound and dominates latency for large documents.
type pdfToPPM struct {
	binPath string
	dpi     int
}

func newPdfToPPM(binPath string, dpi int) *pdfToPPM {
	if binPath == "" {
		binPath = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = defaultDPI
	}
	return &pdfToPPM{binPath: binPath, dpi: dpi}
}

// renderPages writes the PDF to a scratch directory, runs pdftoppm, and
// collects the per-page PNGs in page order. pdftoppm zero-pads page numbers
// in its output names, so a lexicographic sort preserves document order.
func (p *pdfToPPM) renderPages(ctx context.Context, data []byte) ([]model.PageImage, error) {
	dir, err := os.MkdirTemp("", "contract-raster-*")
	if err != nil {
		return nil, eris.Wrap(err, "raster: create scratch dir")
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	pdfPath := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return nil, eris.Wrap(err, "raster: write scratch pdf")
	}

	prefix := filepath.Join(dir, "page")
	cmd := exec.CommandContext(ctx, p.binPath, "-png", "-r", strconv.Itoa(p.dpi), pdfPath, prefix)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "raster: pdftoppm failed: %s", stderr.String())
	}

	entries, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, eris.Wrap(err, "raster: glob rendered pages")
	}
	if len(entries) == 0 {
		return nil, eris.New("raster: pdftoppm produced no pages")
	}
	sort.Strings(entries)

	pages := make([]model.PageImage, 0, len(entries))
	for i, path := range entries {
		img, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "raster: read rendered page %s", path)
		}
		pages = append(pages, model.PageImage{
			Index:     i + 1,
			MediaType: "image/png",
			Data:      img,
		})
	}

	return pages, nil
}
