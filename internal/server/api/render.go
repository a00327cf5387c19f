package api

import (
	"embed"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templatesFS embed.FS

// templateRenderer renders the embedded HTML pages for echo's c.Render.
type templateRenderer struct {
	templates *template.Template
}

func newTemplateRenderer() *templateRenderer {
	return &templateRenderer{
		templates: template.Must(template.ParseFS(templatesFS, "templates/*.html")),
	}
}

func (r *templateRenderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	return r.templates.ExecuteTemplate(w, name, data)
}

type messagePage struct {
	Heading string
	Body    string
}

type deniedPage struct {
	ID        string
	Title     string
	Attempted bool
}
