package docstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode/utf8"
)

// Extractor turns an uploaded file into plain text. Rich-format parsing
// (PDF, DOCX, HTML) plugs in behind this interface.
type Extractor interface {
	ExtractText(ctx context.Context, filename string, r io.Reader) (string, error)
}

const maxUploadBytes = 16 << 20

// PlainTextExtractor accepts text uploads as-is. It rejects files whose
// extension suggests a binary format it cannot read.
type PlainTextExtractor struct{}

func NewPlainTextExtractor() *PlainTextExtractor { return &PlainTextExtractor{} }

func (e *PlainTextExtractor) ExtractText(ctx context.Context, filename string, r io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	switch strings.ToLower(path.Ext(filename)) {
	case "", ".txt", ".md", ".markdown", ".text":
	default:
		return "", fmt.Errorf("unsupported document format %q", path.Ext(filename))
	}

	data, err := io.ReadAll(io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxUploadBytes {
		return "", fmt.Errorf("document exceeds %d byte limit", maxUploadBytes)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("document is not valid UTF-8 text")
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("document contains no text")
	}
	return text, nil
}
