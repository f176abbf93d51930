// Package extract converts uploaded document bytes into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	pdf "github.com/dslipak/pdf"
	"golang.org/x/net/html"
)

// ErrUnsupportedFormat is returned when the source type is not one the
// extractor knows how to read.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// SourceTypes lists the accepted source type identifiers.
var SourceTypes = []string{"pdf", "txt", "md", "html"}

// Supported reports whether the source type is one the extractor accepts.
func Supported(sourceType string) bool {
	return slices.Contains(SourceTypes, strings.ToLower(sourceType))
}

// Text extracts plain text from raw file bytes according to the source type.
// The result is UTF-8 sanitized and trimmed; an empty result means the file
// carried no extractable text.
func Text(data []byte, sourceType string) (string, error) {
	var (
		text string
		err  error
	)

	switch strings.ToLower(sourceType) {
	case "pdf":
		text, err = fromPDF(data)
	case "txt", "md":
		text = string(data)
	case "html":
		text = fromHTML(string(data))
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, sourceType)
	}
	if err != nil {
		return "", err
	}

	return sanitizeUTF8(strings.TrimSpace(text)), nil
}

func fromPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	reader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}

	buf := bytes.NewBuffer(nil)
	if _, err := buf.ReadFrom(reader); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// fromHTML walks the node tree collecting text, skipping script/style blocks.
func fromHTML(htmlStr string) string {
	doc, err := html.Parse(strings.NewReader(htmlStr))
	if err != nil {
		return ""
	}

	var b strings.Builder
	var walk func(*html.Node, bool)

	walk = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				skip = true
			}
		}

		if n.Type == html.TextNode && !skip {
			t := strings.TrimSpace(n.Data)
			if t != "" {
				b.WriteString(t)
				b.WriteString("\n")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
	}
	walk(doc, false)

	lines := strings.Split(b.String(), "\n")
	var filtered []string
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if len(l) > 1 {
			filtered = append(filtered, l)
		}
	}
	return strings.Join(filtered, "\n")
}

// sanitizeUTF8 drops invalid bytes so the text can be stored in Postgres.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		b.WriteRune(r)
		s = s[size:]
	}
	return b.String()
}
