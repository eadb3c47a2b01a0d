package ocr

import (
	"bytes"
	"context"
	"os/exec"

	"github.com/rotisserie/eris"
)

// pdfToText extracts text from PDFs using the pdftotext CLI tool.
type pdfToText struct {
	binPath string
}

// newPdfToText creates a pdfToText extractor. If binPath is empty,
// "pdftotext" is used.
func newPdfToText(binPath string) *pdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &pdfToText{binPath: binPath}
}

// extract runs pdftotext -layout over the PDF bytes and returns stdout.
func (p *pdfToText) extract(ctx context.Context, data []byte) (string, error) {
	path, cleanup, err := writeTempPDF(data)
	if err != nil {
		return "", eris.Wrap(err, "ocr: write temp pdf")
	}
	defer cleanup()

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed: %s", stderr.String())
	}

	return stdout.String(), nil
}
