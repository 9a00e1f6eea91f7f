package render

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"gnotion/internal/notion"
	"gnotion/internal/resolve"
)

// maxDepth bounds recursion into nested children. The upstream tree is
// acyclic in practice, but a malformed payload must not recurse
// forever.
const maxDepth = 16

var (
	youtubeRe = regexp.MustCompile(`(?i)(?:youtube(?:-nocookie)?\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?)/|.*[?&]v=)|youtu\.be/)([^"&?/ ]{11})`)
	vimeoRe   = regexp.MustCompile(`(?i)vimeo\.com/(?:video/)?(\d+)`)
)

// Renderer reduces a page's ordered block sequence to HTML.
type Renderer struct {
	source Source
	fmt    *Formatter
}

func NewRenderer(source Source) *Renderer {
	return &Renderer{source: source, fmt: NewFormatter(source)}
}

// Render fetches the children of pageID and renders them. Only the
// top-level fetch can fail; failures while rendering nested children
// degrade to an inline error fragment so one bad block never blanks
// the page.
func (r *Renderer) Render(ctx context.Context, pageID, currentPath string) (string, error) {
	blocks, err := r.source.ListChildren(ctx, pageID)
	if err != nil {
		return "", err
	}
	if len(blocks) == 0 {
		return `<div class="info-message">This page has no content yet.</div>`, nil
	}
	return r.renderBlocks(ctx, blocks, currentPath, 0), nil
}

// renderBlocks runs the list-grouping state machine over the block
// sequence. Consecutive list items of the same kind share one wrapper;
// a kind change or a non-list block closes it. Wrappers are always
// balanced.
func (r *Renderer) renderBlocks(ctx context.Context, blocks []notion.Block, currentPath string, depth int) string {
	var b strings.Builder
	openList := ""

	closeList := func() {
		if openList != "" {
			b.WriteString("</" + openList + ">\n")
			openList = ""
		}
	}

	for i := range blocks {
		block := &blocks[i]
		listTag := ""
		switch block.Type {
		case notion.TypeBulletedListItem:
			listTag = "ul"
		case notion.TypeNumberedListItem:
			listTag = "ol"
		}

		if listTag == "" {
			closeList()
			b.WriteString(r.renderBlock(ctx, block, currentPath, depth))
			continue
		}

		if openList != listTag {
			closeList()
			b.WriteString("<" + listTag + ">\n")
			openList = listTag
		}
		b.WriteString("<li>")
		b.WriteString(r.fmt.Format(ctx, block.RichText(), currentPath))
		if block.HasChildren {
			b.WriteString(r.renderChildren(ctx, block.ID, currentPath, depth))
		}
		b.WriteString("</li>\n")
	}
	closeList()
	return b.String()
}

func (r *Renderer) renderBlock(ctx context.Context, block *notion.Block, currentPath string, depth int) string {
	switch block.Type {
	case notion.TypeParagraph:
		return "<p>" + r.fmt.Format(ctx, block.RichText(), currentPath) + "</p>\n"

	case notion.TypeHeading1, notion.TypeHeading2, notion.TypeHeading3:
		text := r.fmt.Format(ctx, block.RichText(), currentPath)
		level := block.Type[len(block.Type)-1]
		if level < '1' || level > '6' {
			slog.Warn("heading block with unexpected level", "type", block.Type, "id", block.ID)
			return "<p><strong>" + text + "</strong></p>\n"
		}
		tag := "h" + string(level)
		return "<" + tag + ">" + text + "</" + tag + ">\n"

	case notion.TypeToDo:
		text := r.fmt.Format(ctx, block.RichText(), currentPath)
		checked := ""
		if block.ToDo != nil && block.ToDo.Checked {
			checked = " checked"
		}
		return `<div class="todo-item"><label><input type="checkbox"` + checked + ` disabled> ` + text + "</label></div>\n"

	case notion.TypeQuote:
		return "<blockquote>" + r.fmt.Format(ctx, block.RichText(), currentPath) + "</blockquote>\n"

	case notion.TypeCallout:
		return r.renderCallout(ctx, block, currentPath)

	case notion.TypeCode:
		return r.renderCode(ctx, block, currentPath)

	case notion.TypeImage:
		return r.renderImage(ctx, block, currentPath)

	case notion.TypeVideo:
		return r.renderVideo(ctx, block, currentPath)

	case notion.TypeAudio:
		return r.renderAudio(ctx, block, currentPath)

	case notion.TypeFile:
		return r.renderFile(ctx, block, currentPath)

	case notion.TypeEmbed:
		return r.renderEmbed(ctx, block, currentPath)

	case notion.TypeBookmark:
		return r.renderBookmark(ctx, block, currentPath)

	case notion.TypeDivider:
		return "<hr>\n"

	case notion.TypeEquation:
		expr := ""
		if block.Equation != nil {
			expr = block.Equation.Expression
		}
		return `<div class="notion-equation">\[` + html.EscapeString(expr) + "\\]</div>\n"

	case notion.TypeTable:
		return r.renderTable(ctx, block, currentPath)

	case notion.TypeTableOfContents:
		color := "default"
		if block.TableOfContents != nil && block.TableOfContents.Color != "" {
			color = block.TableOfContents.Color
		}
		return `<div class="notion-table-of-contents-placeholder" data-color="` + html.EscapeString(color) + `"></div>` + "\n"

	case notion.TypeChildPage:
		return renderChildPageLink(block, currentPath)

	case notion.TypeToggle:
		return r.renderToggle(ctx, block, currentPath, depth)

	default:
		// Unknown kinds (breadcrumb included) are silently omitted.
		return ""
	}
}

// renderChildren recurses into a block's children. Failure degrades to
// an inline error fragment; depth overruns are dropped with a log.
func (r *Renderer) renderChildren(ctx context.Context, blockID, currentPath string, depth int) string {
	if depth+1 >= maxDepth {
		slog.Warn("block nesting exceeds depth limit, skipping children", "block", blockID, "depth", depth)
		return ""
	}
	blocks, err := r.source.ListChildren(ctx, blockID)
	if err != nil {
		slog.Warn("fetching nested children failed", "block", blockID, "error", err)
		return `<div class="error-message">Failed to load nested content.</div>`
	}
	return r.renderBlocks(ctx, blocks, currentPath, depth+1)
}

func (r *Renderer) renderCallout(ctx context.Context, block *notion.Block, currentPath string) string {
	text := r.fmt.Format(ctx, block.RichText(), currentPath)
	icon := ""
	if block.Callout != nil && block.Callout.Icon != nil {
		switch {
		case block.Callout.Icon.Emoji != "":
			icon = `<span class="callout-emoji">` + html.EscapeString(block.Callout.Icon.Emoji) + "</span> "
		case block.Callout.Icon.External != nil && block.Callout.Icon.External.URL != "":
			icon = `<img src="` + html.EscapeString(block.Callout.Icon.External.URL) + `" alt="icon" class="callout-icon-external" loading="lazy"> `
		}
	}
	return `<div class="callout">` + icon + text + "</div>\n"
}

func (r *Renderer) renderCode(ctx context.Context, block *notion.Block, currentPath string) string {
	if block.Code == nil {
		return ""
	}
	var src strings.Builder
	for _, run := range block.Code.RichText {
		src.WriteString(run.PlainText)
	}
	language := block.Code.Language
	if language == "" {
		language = "plaintext"
	}
	out := highlightCode(src.String(), language)
	if caption := r.fmt.Format(ctx, block.Code.Caption, currentPath); caption != "" {
		out += `<div class="caption">` + caption + "</div>"
	}
	return out + "\n"
}

func (r *Renderer) renderImage(ctx context.Context, block *notion.Block, currentPath string) string {
	imageURL := block.Image.URL()
	if imageURL == "" {
		return ""
	}
	caption := r.fmt.Format(ctx, block.Image.Caption, currentPath)
	alt := plainText(block.Image.Caption)
	if alt == "" {
		alt = "Image"
	}
	var b strings.Builder
	b.WriteString("<figure>")
	b.WriteString(`<img src="` + html.EscapeString(imageURL) + `" alt="` + html.EscapeString(alt) + `" loading="lazy">`)
	if caption != "" {
		b.WriteString("<figcaption>" + caption + "</figcaption>")
	}
	b.WriteString("</figure>\n")
	return b.String()
}

func (r *Renderer) renderVideo(ctx context.Context, block *notion.Block, currentPath string) string {
	if block.Video == nil {
		return ""
	}
	videoURL := block.Video.URL()
	caption := r.fmt.Format(ctx, block.Video.Caption, currentPath)
	var b strings.Builder
	b.WriteString(`<div class="notion-video">`)
	if validURL(videoURL) {
		b.WriteString(`<video controls src="` + html.EscapeString(videoURL) + `">Your browser does not support the video tag.</video>`)
	} else {
		b.WriteString("<p>Invalid video URL.</p>")
	}
	if caption != "" {
		b.WriteString(`<div class="caption">` + caption + "</div>")
	}
	b.WriteString("</div>\n")
	return b.String()
}

func (r *Renderer) renderAudio(ctx context.Context, block *notion.Block, currentPath string) string {
	audioURL := block.Audio.URL()
	if !validURL(audioURL) {
		return ""
	}
	caption := r.fmt.Format(ctx, block.Audio.Caption, currentPath)
	out := `<div class="notion-audio"><audio controls src="` + html.EscapeString(audioURL) + `"></audio>`
	if caption != "" {
		out += `<div class="caption">` + caption + "</div>"
	}
	return out + "</div>\n"
}

func (r *Renderer) renderFile(ctx context.Context, block *notion.Block, currentPath string) string {
	fileURL := block.File.URL()
	if fileURL == "" {
		return ""
	}
	name := "File"
	if block.File.Name != "" {
		name = block.File.Name
	}
	caption := r.fmt.Format(ctx, block.File.Caption, currentPath)
	var b strings.Builder
	b.WriteString(`<div class="notion-file"><p><a href="` + html.EscapeString(fileURL) + `" target="_blank" download="` + html.EscapeString(name) + `">&#128206; ` + html.EscapeString(name) + "</a></p>")
	if caption != "" {
		b.WriteString(`<div class="caption">` + caption + "</div>")
	}
	b.WriteString("</div>\n")
	return b.String()
}

// renderEmbed emits provider-specific players for the two video hosts
// the content actually uses, a generic iframe for everything else.
func (r *Renderer) renderEmbed(ctx context.Context, block *notion.Block, currentPath string) string {
	embedURL := ""
	if block.Embed != nil {
		embedURL = block.Embed.URL
	}
	caption := ""
	if block.Embed != nil {
		caption = r.fmt.Format(ctx, block.Embed.Caption, currentPath)
	}
	var b strings.Builder
	b.WriteString(`<div class="notion-embed">`)
	switch {
	case !validURL(embedURL):
		b.WriteString("<p>Invalid embed URL: " + html.EscapeString(embedURL) + "</p>")
	case youtubeRe.MatchString(embedURL):
		id := youtubeRe.FindStringSubmatch(embedURL)[1]
		b.WriteString(`<iframe src="https://www.youtube.com/embed/` + html.EscapeString(id) + `" frameborder="0" allow="accelerometer; autoplay; clipboard-write; encrypted-media; gyroscope; picture-in-picture" allowfullscreen></iframe>`)
	case vimeoRe.MatchString(embedURL):
		id := vimeoRe.FindStringSubmatch(embedURL)[1]
		b.WriteString(`<iframe src="https://player.vimeo.com/video/` + html.EscapeString(id) + `" frameborder="0" allow="autoplay; fullscreen; picture-in-picture" allowfullscreen></iframe>`)
	default:
		b.WriteString(`<iframe src="` + html.EscapeString(embedURL) + `" frameborder="0" allowfullscreen></iframe>`)
	}
	if caption != "" {
		b.WriteString(`<div class="caption">` + caption + "</div>")
	}
	b.WriteString("</div>\n")
	return b.String()
}

func (r *Renderer) renderBookmark(ctx context.Context, block *notion.Block, currentPath string) string {
	bookmarkURL := "#"
	caption := ""
	if block.Bookmark != nil {
		if block.Bookmark.URL != "" {
			bookmarkURL = block.Bookmark.URL
		}
		caption = r.fmt.Format(ctx, block.Bookmark.Caption, currentPath)
	}
	var b strings.Builder
	b.WriteString(`<div class="notion-bookmark">`)
	b.WriteString(`<a href="` + html.EscapeString(bookmarkURL) + `" target="_blank" rel="noopener noreferrer">` + html.EscapeString(bookmarkURL) + "</a>")
	if caption != "" {
		b.WriteString(`<div class="caption">` + caption + "</div>")
	}
	b.WriteString("</div>\n")
	return b.String()
}

// renderTable fetches the table's rows as its children. The first row
// becomes a header row when the table declares a column header; the
// first cell of each body row becomes a header cell when it declares a
// row header.
func (r *Renderer) renderTable(ctx context.Context, block *notion.Block, currentPath string) string {
	rows, err := r.source.ListChildren(ctx, block.ID)
	if err != nil {
		slog.Warn("fetching table rows failed", "block", block.ID, "error", err)
		return `<div class="table-placeholder">Failed to load table content.</div>` + "\n"
	}
	hasColumnHeader := false
	hasRowHeader := false
	if block.Table != nil {
		hasColumnHeader = block.Table.HasColumnHeader
		hasRowHeader = block.Table.HasRowHeader
	}

	cells := make([]*notion.TableRow, 0, len(rows))
	for i := range rows {
		if rows[i].Type == notion.TypeTableRow && rows[i].TableRow != nil {
			cells = append(cells, rows[i].TableRow)
		}
	}

	var b strings.Builder
	b.WriteString(`<div class="table-wrapper"><table class="notion-table">` + "\n")
	if hasColumnHeader && len(cells) > 0 {
		b.WriteString("<thead><tr>\n")
		for _, cell := range cells[0].Cells {
			b.WriteString("<th>" + r.fmt.Format(ctx, cell, currentPath) + "</th>\n")
		}
		b.WriteString("</tr></thead>\n")
		cells = cells[1:]
	}
	b.WriteString("<tbody>\n")
	for _, row := range cells {
		b.WriteString("<tr>\n")
		for i, cell := range row.Cells {
			tag := "td"
			if hasRowHeader && i == 0 {
				tag = "th"
			}
			b.WriteString("<" + tag + ">" + r.fmt.Format(ctx, cell, currentPath) + "</" + tag + ">\n")
		}
		b.WriteString("</tr>\n")
	}
	b.WriteString("</tbody>\n</table></div>\n")
	return b.String()
}

func (r *Renderer) renderToggle(ctx context.Context, block *notion.Block, currentPath string, depth int) string {
	summary := r.fmt.Format(ctx, block.RichText(), currentPath)
	var b strings.Builder
	b.WriteString(`<details class="notion-toggle"><summary>` + summary + "</summary>")
	if block.HasChildren {
		b.WriteString(`<div class="notion-toggle-content">`)
		b.WriteString(r.renderChildren(ctx, block.ID, currentPath, depth))
		b.WriteString("</div>")
	}
	b.WriteString("</details>\n")
	return b.String()
}

// renderChildPageLink builds the same relative link the resolver will
// accept. A title that normalizes to nothing is unreachable by path
// and gets a placeholder label instead of a dead href.
func renderChildPageLink(block *notion.Block, currentPath string) string {
	if block.ChildPage == nil {
		return ""
	}
	title := block.ChildPage.Title
	slug := resolve.NormalizeTitle(title)
	if slug == "" {
		return `<p class="child-page-link"><em>(Subpage without a usable title)</em></p>` + "\n"
	}
	return fmt.Sprintf("<p class=\"child-page-link\"><a href=%q>&#128196; %s</a></p>\n",
		childPath(currentPath, slug), html.EscapeString(title))
}

func plainText(runs []notion.RichText) string {
	var b strings.Builder
	for _, run := range runs {
		b.WriteString(run.PlainText)
	}
	return b.String()
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
