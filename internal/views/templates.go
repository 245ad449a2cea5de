package views

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"
)

//go:embed templates
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

var pageTmpl *template.Template

// loadTemplatesFromFS parses the page templates found under dir in fsys.
// Tests use it with broken filesystems.
func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	pageTmpl, err = template.ParseFS(sub, "*.html")
	return err
}

// LoadTemplates parses the embedded templates. Call it once at startup.
func LoadTemplates() error {
	return loadTemplatesFromFS(templatesFS, "templates")
}

// RenderPage writes the full page.
func RenderPage(w io.Writer, data PageData) error {
	if pageTmpl == nil {
		return errors.New("page template not loaded: call views.LoadTemplates during startup")
	}
	return pageTmpl.ExecuteTemplate(w, "index.html", data)
}

// Static returns the embedded browser assets (script and stylesheet).
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		// static is embedded at build time; Sub only fails on an invalid path
		panic(err)
	}
	return sub
}
