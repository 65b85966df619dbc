package extract

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Extractor converts a source document into raw text.
// Implementations must be thread-safe for concurrent use.
type Extractor interface {
	// Extract reads the document and returns its plain-text contents.
	// An empty string is a valid result for a document with no text.
	Extract(ctx context.Context, r io.Reader) (string, error)
}

// PlainText is an Extractor for documents that already are UTF-8 text.
// It scrubs control characters and invalid byte sequences so downstream
// chunking operates on clean text.
type PlainText struct {
	logger *slog.Logger
}

// NewPlainText creates a plain-text extractor.
func NewPlainText() *PlainText {
	return &PlainText{
		logger: slog.Default().With("component", "plaintext-extractor"),
	}
}

// Extract reads the full document and scrubs it.
func (p *PlainText) Extract(ctx context.Context, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}

	text := scrubText(string(data))
	p.logger.Debug("extracted document text", "bytes", len(data), "chars", len(text))
	return text, nil
}

// scrubText drops control characters (keeping newlines and tabs), replaces
// invalid UTF-8 sequences, and trims surrounding whitespace.
func scrubText(s string) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
