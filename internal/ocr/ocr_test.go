package ocr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pactwatch/contract-cli/internal/model"
)

func TestExtractText_PlainTextPassthrough(t *testing.T) {
	e := New("")

	text, err := e.ExtractText(context.Background(), model.RawDocument{
		Name: "notes.txt",
		Data: []byte("termination notice: 90 days"),
	})
	require.NoError(t, err)
	assert.Equal(t, "termination notice: 90 days", text)
}

func TestExtractText_UnknownFormatYieldsEmpty(t *testing.T) {
	e := New("")

	text, err := e.ExtractText(context.Background(), model.RawDocument{
		Name: "scan.png",
		Data: []byte{0x89, 0x50, 0x4e, 0x47},
	})
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestExtractText_MissingBinary(t *testing.T) {
	e := New("/nonexistent/pdftotext")

	_, err := e.ExtractText(context.Background(), model.RawDocument{
		Name: "contract.pdf",
		Data: []byte("%PDF-1.4"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pdftotext")
}
