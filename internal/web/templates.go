package web

import (
	"bytes"
	"html/template"
	"net/http"
	"path/filepath"
	"runtime"
)

type Templates struct {
	all *template.Template
}

func MustParseTemplates() *Templates {
	glob := filepath.Join(moduleRoot(), "templates", "*.html")
	t := template.Must(template.New("").ParseGlob(glob))
	return &Templates{all: t}
}

// StaticDir is the on-disk root for /css and /js assets.
func StaticDir() string {
	return filepath.Join(moduleRoot(), "static")
}

func moduleRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		panic("unable to resolve module root")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

// RenderPage executes the named content template and wraps it in the
// base layout.
func (t *Templates) RenderPage(w http.ResponseWriter, status int, data ViewData) {
	var content bytes.Buffer
	if err := t.all.ExecuteTemplate(&content, data.ContentTemplate, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	pageData := data
	pageData.ContentHTML = template.HTML(content.String())
	if err := t.all.ExecuteTemplate(w, "base", pageData); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
