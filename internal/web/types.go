package web

import "html/template"

// ViewData carries everything the templates need for one response.
type ViewData struct {
	ContentTemplate string
	ContentHTML     template.HTML

	Title       string
	MainTitle   string
	OGTitle     string
	Description string
	CurrentURL  string
	RequestPath string
	CoverURL    string
	Breadcrumb  bool

	Content  template.HTML
	Error    string
	NotFound bool

	Notice template.HTML
	Year   int
}
