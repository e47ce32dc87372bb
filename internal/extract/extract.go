// Package extract converts attachment payloads (PDF, HTML, plain text)
// into text suitable for model context.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// imageExts are attachment extensions treated as images.
var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true,
}

// documentExts are attachment extensions treated as extractable documents.
var documentExts = map[string]bool{
	".pdf": true, ".txt": true, ".md": true, ".html": true, ".htm": true,
	".csv": true, ".log": true, ".json": true, ".yaml": true, ".yml": true,
}

// IsImage reports whether the filename looks like an image attachment.
func IsImage(filename string) bool {
	return imageExts[strings.ToLower(filepath.Ext(filename))]
}

// IsDocument reports whether the filename looks like an extractable document.
func IsDocument(filename string) bool {
	return documentExts[strings.ToLower(filepath.Ext(filename))]
}

// Text extracts readable text from a document payload, dispatching on the
// filename extension. Unknown extensions fall back to UTF-8 passthrough.
func Text(payload []byte, filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return PDFText(payload)
	case ".html", ".htm":
		return HTMLText(payload)
	default:
		if !utf8.Valid(payload) {
			return "", fmt.Errorf("extract: %s is not valid UTF-8 text", filename)
		}
		return string(payload), nil
	}
}

// PDFText extracts the plain text of a PDF payload.
func PDFText(payload []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return "", fmt.Errorf("extract: open pdf: %w", err)
	}
	text, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract: read pdf text: %w", err)
	}
	var b bytes.Buffer
	if _, err := io.Copy(&b, text); err != nil {
		return "", fmt.Errorf("extract: copy pdf text: %w", err)
	}
	return b.String(), nil
}

// HTMLText extracts visible text from an HTML payload, one line per text
// node, skipping script and style content.
func HTMLText(payload []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("extract: parse html: %w", err)
	}
	var b strings.Builder
	collectText(doc, &b)
	return strings.TrimSpace(b.String()), nil
}

// collectText walks the parse tree appending text nodes to b.
func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return
	}
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			b.WriteString(text)
			b.WriteByte('\n')
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
