package web

import (
	"bytes"
	"embed"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

//go:embed templates/*.html
var templateFS embed.FS

// markdown renderer for post and comment bodies; raw HTML in user input is
// not passed through.
var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Linkify,
	),
)

// Templates parses the embedded views. Times are shown in loc.
func Templates(loc *time.Location) *template.Template {
	funcs := template.FuncMap{
		"markdown": func(content string) template.HTML {
			return template.HTML(renderMarkdown(content))
		},
		"localtime": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.In(loc).Format("2006-01-02 15:04")
		},
		"now": func() time.Time {
			return time.Now().In(loc)
		},
	}

	return template.Must(template.New("").Funcs(funcs).ParseFS(templateFS, "templates/*.html"))
}

func renderMarkdown(content string) string {
	var buf bytes.Buffer
	if err := md.Convert([]byte(content), &buf); err != nil {
		return template.HTMLEscapeString(content)
	}
	return buf.String()
}
