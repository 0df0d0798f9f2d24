// ABOUTME: Markdown-to-HTML rendering and template helpers for the chat UI
// ABOUTME: All rendered agent output is sanitized before it reaches the browser

package web

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.html
var templateFS embed.FS

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var sanitizer = bluemonday.UGCPolicy()

// renderMarkdown converts agent markdown to sanitized HTML.
func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(sanitizer.SanitizeBytes(buf.Bytes()))
}

// renderPage executes a full page template over base.html.
func (s *Server) renderPage(w http.ResponseWriter, page string, data any) {
	tmpl := template.Must(template.ParseFS(templateFS,
		"templates/base.html",
		"templates/"+page,
	))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		s.logger.Error("failed to render page", "page", page, "error", err)
	}
}
