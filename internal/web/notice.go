package web

import (
	"bytes"
	"fmt"
	"html/template"
	"os"

	"github.com/yuin/goldmark"
)

// LoadNotice renders an optional operator-provided markdown file shown
// above every page (maintenance notes, announcements). An empty path
// means no notice.
func LoadNotice(path string) (template.HTML, error) {
	if path == "" {
		return "", nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read notice file: %w", err)
	}
	var buf bytes.Buffer
	if err := goldmark.Convert(src, &buf); err != nil {
		return "", fmt.Errorf("render notice markdown: %w", err)
	}
	return template.HTML(buf.String()), nil
}
