package render

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gnotion/internal/notion"
)

type fakeSource struct {
	children map[string][]notion.Block
	meta     map[string]notion.PageMeta
	errs     map[string]error
}

func (f *fakeSource) ListChildren(_ context.Context, blockID string) ([]notion.Block, error) {
	if err := f.errs[blockID]; err != nil {
		return nil, err
	}
	return f.children[blockID], nil
}

func (f *fakeSource) GetPageMetadata(_ context.Context, pageID string) notion.PageMeta {
	if m, ok := f.meta[pageID]; ok {
		return m
	}
	return notion.PageMeta{Title: notion.DefaultPageTitle}
}

func textRun(s string) notion.RichText {
	return notion.RichText{Type: "text", PlainText: s, Annotations: &notion.Annotations{Color: "default"}}
}

func paragraph(id, text string) notion.Block {
	return notion.Block{ID: id, Type: notion.TypeParagraph,
		Paragraph: &notion.TextBlock{RichText: []notion.RichText{textRun(text)}}}
}

func bullet(id, text string) notion.Block {
	return notion.Block{ID: id, Type: notion.TypeBulletedListItem,
		BulletedListItem: &notion.TextBlock{RichText: []notion.RichText{textRun(text)}}}
}

func numbered(id, text string) notion.Block {
	return notion.Block{ID: id, Type: notion.TypeNumberedListItem,
		NumberedListItem: &notion.TextBlock{RichText: []notion.RichText{textRun(text)}}}
}

func renderPage(t *testing.T, src *fakeSource, pageID string) string {
	t.Helper()
	out, err := NewRenderer(src).Render(context.Background(), pageID, "")
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	return out
}

func TestRenderParagraph(t *testing.T) {
	src := &fakeSource{children: map[string][]notion.Block{
		"page": {paragraph("b1", "Hello")},
	}}
	out := renderPage(t, src, "page")
	if !strings.Contains(out, "<p>Hello</p>") {
		t.Fatalf("missing paragraph in %q", out)
	}
	if strings.Contains(out, "error-message") {
		t.Fatalf("unexpected error markup in %q", out)
	}
}

func TestRenderEmptyPage(t *testing.T) {
	src := &fakeSource{children: map[string][]notion.Block{}}
	out := renderPage(t, src, "page")
	if !strings.Contains(out, "info-message") {
		t.Fatalf("expected empty-page notice, got %q", out)
	}
}

func TestRenderEscapesText(t *testing.T) {
	src := &fakeSource{children: map[string][]notion.Block{
		"page": {paragraph("b1", `<script>alert("x")</script>`)},
	}}
	out := renderPage(t, src, "page")
	if strings.Contains(out, "<script>") {
		t.Fatalf("unescaped markup leaked: %q", out)
	}
	if !strings.Contains(out, "&lt;script&gt;") {
		t.Fatalf("expected escaped markup, got %q", out)
	}
}

func TestRenderListGrouping(t *testing.T) {
	src := &fakeSource{children: map[string][]notion.Block{
		"page": {
			bullet("b1", "one"), bullet("b2", "two"), bullet("b3", "three"),
			numbered("n1", "first"), numbered("n2", "second"),
		},
	}}
	out := renderPage(t, src, "page")

	if strings.Count(out, "<ul>") != 1 || strings.Count(out, "</ul>") != 1 {
		t.Fatalf("expected one bullet wrapper, got %q", out)
	}
	if strings.Count(out, "<ol>") != 1 || strings.Count(out, "</ol>") != 1 {
		t.Fatalf("expected one numbered wrapper, got %q", out)
	}
	if strings.Count(out, "<li>") != 5 {
		t.Fatalf("expected 5 items, got %q", out)
	}
	ulEnd := strings.Index(out, "</ul>")
	olStart := strings.Index(out, "<ol>")
	if ulEnd == -1 || olStart == -1 || ulEnd > olStart {
		t.Fatalf("numbered list must follow closed bullet list: %q", out)
	}
}

func TestRenderListClosedByNonListBlock(t *testing.T) {
	src := &fakeSource{children: map[string][]notion.Block{
		"page": {bullet("b1", "item"), paragraph("p1", "after"), bullet("b2", "again")},
	}}
	out := renderPage(t, src, "page")
	if strings.Count(out, "<ul>") != 2 || strings.Count(out, "</ul>") != 2 {
		t.Fatalf("paragraph must split the list into two wrappers: %q", out)
	}
	if strings.Index(out, "</ul>") > strings.Index(out, "<p>after</p>") {
		t.Fatalf("wrapper not closed before paragraph: %q", out)
	}
}

func TestRenderHeadings(t *testing.T) {
	src := &fakeSource{children: map[string][]notion.Block{
		"page": {
			{ID: "h1", Type: notion.TypeHeading1, Heading1: &notion.TextBlock{RichText: []notion.RichText{textRun("Top")}}},
			{ID: "h3", Type: notion.TypeHeading3, Heading3: &notion.TextBlock{RichText: []notion.RichText{textRun("Deep")}}},
		},
	}}
	out := renderPage(t, src, "page")
	if !strings.Contains(out, "<h1>Top</h1>") || !strings.Contains(out, "<h3>Deep</h3>") {
		t.Fatalf("heading tags missing: %q", out)
	}
}

func TestRenderToDo(t *testing.T) {
	src := &fakeSource{children: map[string][]notion.Block{
		"page": {
			{ID: "t1", Type: notion.TypeToDo, ToDo: &notion.ToDoBlock{
				RichText: []notion.RichText{textRun("done thing")}, Checked: true}},
			{ID: "t2", Type: notion.TypeToDo, ToDo: &notion.ToDoBlock{
				RichText: []notion.RichText{textRun("open thing")}}},
		},
	}}
	out := renderPage(t, src, "page")
	if !strings.Contains(out, `<input type="checkbox" checked disabled> done thing`) {
		t.Fatalf("checked box missing: %q", out)
	}
	if !strings.Contains(out, `<input type="checkbox" disabled> open thing`) {
		t.Fatalf("unchecked box missing: %q", out)
	}
}

func TestAnnotationNestingOrder(t *testing.T) {
	f := NewFormatter(&fakeSource{})
	runs := []notion.RichText{{
		Type: "text", PlainText: "x",
		Annotations: &notion.Annotations{Bold: true, Italic: true, Code: true, Color: "red"},
	}}
	got := f.Format(context.Background(), runs, "")
	want := `<span class="notion-red"><code><em><strong>x</strong></em></code></span>`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestColorBackgroundClass(t *testing.T) {
	f := NewFormatter(&fakeSource{})
	runs := []notion.RichText{{
		Type: "text", PlainText: "x",
		Annotations: &notion.Annotations{Color: "blue_background"},
	}}
	got := f.Format(context.Background(), runs, "")
	if !strings.Contains(got, `class="notion-blue-bg"`) {
		t.Fatalf("background class wrong: %q", got)
	}
}

func TestLinkWrapsFormattedText(t *testing.T) {
	f := NewFormatter(&fakeSource{})
	runs := []notion.RichText{{
		Type: "text", PlainText: "docs", Href: "https://example.com/a?b=1",
		Annotations: &notion.Annotations{Bold: true},
	}}
	got := f.Format(context.Background(), runs, "")
	if !strings.Contains(got, `href="https://example.com/a?b=1"`) {
		t.Fatalf("href missing: %q", got)
	}
	if !strings.Contains(got, "<strong>docs</strong>") {
		t.Fatalf("link must wrap the formatted text: %q", got)
	}
	if !strings.Contains(got, `target="_blank"`) {
		t.Fatalf("external link must open a new tab: %q", got)
	}
}

func TestInlineEquation(t *testing.T) {
	f := NewFormatter(&fakeSource{})
	runs := []notion.RichText{{Type: "equation", Equation: &notion.Equation{Expression: "a < b"}}}
	got := f.Format(context.Background(), runs, "")
	if got != `\(a &lt; b\)` {
		t.Fatalf("got %q", got)
	}
}

func TestUnknownRunKindFallsBackToPlainText(t *testing.T) {
	f := NewFormatter(&fakeSource{})
	runs := []notion.RichText{{Type: "template_mention", PlainText: "Today"}}
	if got := f.Format(context.Background(), runs, ""); got != "Today" {
		t.Fatalf("got %q", got)
	}
}

func TestPageMentionUsesFetchedTitle(t *testing.T) {
	f := NewFormatter(&fakeSource{meta: map[string]notion.PageMeta{
		"p-42": {Title: "Release Notes"},
	}})
	runs := []notion.RichText{{
		Type: "mention", PlainText: "Release Notes",
		Mention: &notion.Mention{Type: "page", Page: &notion.PageMention{ID: "p-42"}},
	}}
	got := f.Format(context.Background(), runs, "/projects")
	if !strings.Contains(got, `href="/projects/release-notes"`) {
		t.Fatalf("mention link wrong: %q", got)
	}
	if !strings.Contains(got, ">Release Notes<") {
		t.Fatalf("mention label wrong: %q", got)
	}
}

func TestPageMentionFallsBackToInlineText(t *testing.T) {
	// Metadata lookup yields only the default title, so the run's own
	// plain text names the link.
	f := NewFormatter(&fakeSource{})
	runs := []notion.RichText{{
		Type: "mention", PlainText: "Old Title",
		Mention: &notion.Mention{Type: "page", Page: &notion.PageMention{ID: "p-9"}},
	}}
	got := f.Format(context.Background(), runs, "")
	if !strings.Contains(got, `href="/old-title"`) || !strings.Contains(got, ">Old Title<") {
		t.Fatalf("fallback mention wrong: %q", got)
	}
}

func TestChildPageLink(t *testing.T) {
	src := &fakeSource{children: map[string][]notion.Block{
		"page": {
			{ID: "c1", Type: notion.TypeChildPage, ChildPage: &notion.ChildPage{Title: "Zażółć Notatki"}},
			{ID: "c2", Type: notion.TypeChildPage, ChildPage: &notion.ChildPage{Title: "!!!"}},
		},
	}}
	out := renderPage(t, src, "page")
	if !strings.Contains(out, `href="/zazolc-notatki"`) {
		t.Fatalf("child link missing: %q", out)
	}
	if !strings.Contains(out, "Subpage without a usable title") {
		t.Fatalf("placeholder for empty slug missing: %q", out)
	}
	if strings.Contains(out, `href=""`) {
		t.Fatalf("dead href emitted: %q", out)
	}
}

func TestToggleRecursesIntoChildren(t *testing.T) {
	src := &fakeSource{children: map[string][]notion.Block{
		"page": {{ID: "tg", Type: notion.TypeToggle, HasChildren: true,
			Toggle: &notion.TextBlock{RichText: []notion.RichText{textRun("More")}}}},
		"tg": {paragraph("inner", "hidden detail")},
	}}
	out := renderPage(t, src, "page")
	if !strings.Contains(out, "<summary>More</summary>") {
		t.Fatalf("summary missing: %q", out)
	}
	if !strings.Contains(out, "<p>hidden detail</p>") {
		t.Fatalf("nested content missing: %q", out)
	}
}

func TestNestedFetchFailureDegradesInline(t *testing.T) {
	src := &fakeSource{
		children: map[string][]notion.Block{
			"page": {
				{ID: "tg", Type: notion.TypeToggle, HasChildren: true,
					Toggle: &notion.TextBlock{RichText: []notion.RichText{textRun("More")}}},
				paragraph("after", "still here"),
			},
		},
		errs: map[string]error{"tg": errors.New("upstream down")},
	}
	out := renderPage(t, src, "page")
	if !strings.Contains(out, "error-message") {
		t.Fatalf("inline error missing: %q", out)
	}
	if !strings.Contains(out, "<p>still here</p>") {
		t.Fatalf("one bad block must not blank the page: %q", out)
	}
}

func TestTopLevelFetchFailurePropagates(t *testing.T) {
	src := &fakeSource{errs: map[string]error{"page": errors.New("upstream down")}}
	if _, err := NewRenderer(src).Render(context.Background(), "page", ""); err == nil {
		t.Fatalf("expected error from top-level fetch")
	}
}

func TestRecursionDepthBounded(t *testing.T) {
	// A self-referencing toggle must terminate instead of recursing
	// forever.
	cyclic := notion.Block{ID: "loop", Type: notion.TypeToggle, HasChildren: true,
		Toggle: &notion.TextBlock{RichText: []notion.RichText{textRun("loop")}}}
	src := &fakeSource{children: map[string][]notion.Block{
		"page": {cyclic},
		"loop": {cyclic},
	}}
	out := renderPage(t, src, "page")
	if strings.Count(out, "<details") > maxDepth {
		t.Fatalf("depth cap not applied, %d nested toggles", strings.Count(out, "<details"))
	}
}

func TestRenderTableHeaders(t *testing.T) {
	row := func(cells ...string) notion.Block {
		tr := &notion.TableRow{}
		for _, c := range cells {
			tr.Cells = append(tr.Cells, []notion.RichText{textRun(c)})
		}
		return notion.Block{Type: notion.TypeTableRow, TableRow: tr}
	}
	src := &fakeSource{children: map[string][]notion.Block{
		"page": {{ID: "tbl", Type: notion.TypeTable, HasChildren: true,
			Table: &notion.TableBlock{HasColumnHeader: true, HasRowHeader: true, TableWidth: 2}}},
		"tbl": {row("Name", "Value"), row("alpha", "1"), row("beta", "2")},
	}}
	out := renderPage(t, src, "page")
	if !strings.Contains(out, "<thead><tr>\n<th>Name</th>\n<th>Value</th>") {
		t.Fatalf("column header wrong: %q", out)
	}
	if !strings.Contains(out, "<th>alpha</th>") || !strings.Contains(out, "<td>1</td>") {
		t.Fatalf("row header wrong: %q", out)
	}
}

func TestRenderTableFetchFailure(t *testing.T) {
	src := &fakeSource{
		children: map[string][]notion.Block{
			"page": {{ID: "tbl", Type: notion.TypeTable, HasChildren: true, Table: &notion.TableBlock{}}},
		},
		errs: map[string]error{"tbl": errors.New("nope")},
	}
	out := renderPage(t, src, "page")
	if !strings.Contains(out, "table-placeholder") {
		t.Fatalf("table placeholder missing: %q", out)
	}
}

func TestRenderEmbedProviders(t *testing.T) {
	embed := func(id, u string) notion.Block {
		return notion.Block{ID: id, Type: notion.TypeEmbed, Embed: &notion.LinkBlock{URL: u}}
	}
	src := &fakeSource{children: map[string][]notion.Block{
		"page": {
			embed("e1", "https://www.youtube.com/watch?v=dQw4w9WgXcQ"),
			embed("e2", "https://vimeo.com/76979871"),
			embed("e3", "https://maps.example.com/widget"),
			embed("e4", "not a url"),
		},
	}}
	out := renderPage(t, src, "page")
	if !strings.Contains(out, "https://www.youtube.com/embed/dQw4w9WgXcQ") {
		t.Fatalf("youtube embed missing: %q", out)
	}
	if !strings.Contains(out, "https://player.vimeo.com/video/76979871") {
		t.Fatalf("vimeo embed missing: %q", out)
	}
	if !strings.Contains(out, `src="https://maps.example.com/widget"`) {
		t.Fatalf("generic iframe missing: %q", out)
	}
	if !strings.Contains(out, "Invalid embed URL") {
		t.Fatalf("invalid URL message missing: %q", out)
	}
}

func TestRenderMediaAndMisc(t *testing.T) {
	src := &fakeSource{children: map[string][]notion.Block{
		"page": {
			{ID: "img", Type: notion.TypeImage, Image: &notion.MediaBlock{
				External: &notion.ExternalURL{URL: "https://img.example/x.png"},
				Caption:  []notion.RichText{textRun("the caption")}}},
			{ID: "div", Type: notion.TypeDivider},
			{ID: "eq", Type: notion.TypeEquation, Equation: &notion.Equation{Expression: "E=mc^2"}},
			{ID: "q", Type: notion.TypeQuote, Quote: &notion.TextBlock{RichText: []notion.RichText{textRun("wise words")}}},
			{ID: "toc", Type: notion.TypeTableOfContents, TableOfContents: &notion.TOCBlock{Color: "gray"}},
			{ID: "bm", Type: notion.TypeBookmark, Bookmark: &notion.LinkBlock{URL: "https://example.com"}},
			{ID: "mystery", Type: "unsupported_widget"},
		},
	}}
	out := renderPage(t, src, "page")
	checks := []string{
		`<img src="https://img.example/x.png"`,
		"<figcaption>the caption</figcaption>",
		"<hr>",
		`\[E=mc^2\]`,
		"<blockquote>wise words</blockquote>",
		`data-color="gray"`,
		`class="notion-bookmark"`,
	}
	for _, want := range checks {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output", want)
		}
	}
	if strings.Contains(out, "mystery") || strings.Contains(out, "unsupported_widget") {
		t.Fatalf("unknown kinds must be silently omitted: %q", out)
	}
}

func TestBlocksWithoutPayloadRenderSafely(t *testing.T) {
	// The payload field matching the type discriminator can be absent;
	// a malformed block must drop out without taking the page with it.
	kinds := []string{
		notion.TypeImage,
		notion.TypeVideo,
		notion.TypeAudio,
		notion.TypeFile,
		notion.TypeEmbed,
		notion.TypeBookmark,
		notion.TypeCode,
		notion.TypeCallout,
		notion.TypeEquation,
		notion.TypeTableOfContents,
		notion.TypeChildPage,
	}
	for _, kind := range kinds {
		src := &fakeSource{children: map[string][]notion.Block{
			"page": {
				{ID: "bare", Type: kind},
				paragraph("after", "still here"),
			},
		}}
		out := renderPage(t, src, "page")
		if !strings.Contains(out, "<p>still here</p>") {
			t.Errorf("%s: following block lost, got %q", kind, out)
		}
	}
}

func TestHighlightCodeFallback(t *testing.T) {
	out := highlightCode("select 1", "no-such-language-here")
	if !strings.Contains(out, `class="language-no-such-language-here"`) {
		t.Fatalf("fallback class missing: %q", out)
	}
	if !strings.Contains(out, "select 1") {
		t.Fatalf("source lost: %q", out)
	}
}

func TestHighlightCodeKnownLanguage(t *testing.T) {
	out := highlightCode("package main", "go")
	if !strings.Contains(out, "<pre") {
		t.Fatalf("expected highlighted pre block: %q", out)
	}
	if !strings.Contains(out, "main") {
		t.Fatalf("source lost: %q", out)
	}
}
