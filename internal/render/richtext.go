// Package render turns a page's block tree into HTML. Block-level
// structure is handled by Renderer, inline runs by Formatter; both are
// pure over their inputs apart from upstream lookups for nested
// children and mentioned pages.
package render

import (
	"context"
	"html"
	"log/slog"
	"strings"

	"gnotion/internal/notion"
	"gnotion/internal/resolve"
)

// Source is the slice of the upstream client rendering needs: child
// listings for nested blocks and tables, metadata for page mentions.
type Source interface {
	ListChildren(ctx context.Context, blockID string) ([]notion.Block, error)
	GetPageMetadata(ctx context.Context, pageID string) notion.PageMeta
}

// Formatter renders an ordered sequence of rich-text runs into inline
// HTML. Runs are processed strictly in order and never merged.
type Formatter struct {
	source Source
}

func NewFormatter(source Source) *Formatter {
	return &Formatter{source: source}
}

// Format concatenates the rendering of each run. currentPath is the
// request path of the page being rendered; page-mention links are built
// relative to it.
func (f *Formatter) Format(ctx context.Context, runs []notion.RichText, currentPath string) string {
	var b strings.Builder
	for i := range runs {
		b.WriteString(f.formatRun(ctx, &runs[i], currentPath))
	}
	return b.String()
}

func (f *Formatter) formatRun(ctx context.Context, run *notion.RichText, currentPath string) string {
	switch run.Type {
	case "text":
		return formatText(run)
	case "mention":
		return f.formatMention(ctx, run, currentPath)
	case "equation":
		if run.Equation == nil {
			return html.EscapeString(run.PlainText)
		}
		return `\(` + html.EscapeString(run.Equation.Expression) + `\)`
	default:
		return html.EscapeString(run.PlainText)
	}
}

// formatText escapes the plain string and applies annotation wrappers
// in a fixed nesting order so any flag combination nests the same way.
func formatText(run *notion.RichText) string {
	text := html.EscapeString(run.PlainText)
	if a := run.Annotations; a != nil {
		if a.Bold {
			text = "<strong>" + text + "</strong>"
		}
		if a.Italic {
			text = "<em>" + text + "</em>"
		}
		if a.Strikethrough {
			text = "<del>" + text + "</del>"
		}
		if a.Underline {
			text = "<u>" + text + "</u>"
		}
		if a.Code {
			text = "<code>" + text + "</code>"
		}
		if a.Color != "" && a.Color != "default" {
			text = `<span class="` + colorClass(a.Color) + `">` + text + "</span>"
		}
	}
	if run.Href != "" {
		text = `<a href="` + html.EscapeString(run.Href) + `" target="_blank" rel="noopener noreferrer">` + text + "</a>"
	}
	return text
}

// colorClass maps an upstream color name to a CSS class,
// distinguishing text color from background variants:
// "blue" -> "notion-blue", "blue_background" -> "notion-blue-bg".
func colorClass(color string) string {
	return "notion-" + strings.ReplaceAll(color, "_background", "-bg")
}

// formatMention renders a page mention as a link relative to the
// current path. The link is only correct when the mentioned page is a
// direct child of the current one; resolving its canonical location
// would need a reverse walk the upstream API does not offer cheaply.
func (f *Formatter) formatMention(ctx context.Context, run *notion.RichText, currentPath string) string {
	if run.Mention == nil || run.Mention.Type != "page" || run.Mention.Page == nil {
		return html.EscapeString(run.PlainText)
	}
	pageID := run.Mention.Page.ID
	title := f.source.GetPageMetadata(ctx, pageID).Title
	if title == "" || title == notion.DefaultPageTitle {
		title = run.PlainText
		if title == "" {
			title = pageID
		}
		slog.Debug("page mention fell back to inline text", "page", pageID, "label", title)
	}
	slug := resolve.NormalizeTitle(title)
	if slug == "" {
		return html.EscapeString(title)
	}
	return `<a href="` + html.EscapeString(childPath(currentPath, slug)) + `">` + html.EscapeString(title) + "</a>"
}

// childPath joins a child slug onto the current request path, always
// rooted with a leading slash.
func childPath(currentPath, slug string) string {
	base := strings.Trim(currentPath, "/")
	if base == "" {
		return "/" + slug
	}
	return "/" + base + "/" + slug
}
