// Package views renders the server-side pages of the album with html/template.
package views

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/atividade/backend/internal/models"
	"github.com/gofiber/fiber/v2"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

const layoutFile = "templates/layout.html"

// Engine implements fiber.Views. Every page is parsed together with the
// shared layout and rendered through it.
type Engine struct {
	mu        sync.RWMutex
	templates map[string]*template.Template
	funcs     template.FuncMap
}

var _ fiber.Views = (*Engine)(nil)

func New() *Engine {
	return &Engine{funcs: funcMap()}
}

func funcMap() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Local().Format("02/01/2006 15:04")
		},
		"hasPhoto": func(a models.Atividade) bool {
			return a.HasPhoto()
		},
		"photoURL": func(a models.Atividade) string {
			return a.PhotoURL()
		},
	}
}

func (e *Engine) Load() error {
	pages, err := fs.Glob(templateFS, "templates/*.html")
	if err != nil {
		return err
	}

	parsed := make(map[string]*template.Template, len(pages))
	for _, page := range pages {
		if page == layoutFile {
			continue
		}
		name := strings.TrimSuffix(path.Base(page), ".html")
		tmpl, err := template.New(path.Base(layoutFile)).Funcs(e.funcs).ParseFS(templateFS, layoutFile, page)
		if err != nil {
			return fmt.Errorf("parse template %s: %w", name, err)
		}
		parsed[name] = tmpl
	}

	e.mu.Lock()
	e.templates = parsed
	e.mu.Unlock()
	return nil
}

// Render ignores layouts: every page already carries the shared one.
func (e *Engine) Render(w io.Writer, name string, binding interface{}, _ ...string) error {
	e.mu.RLock()
	tmpl, ok := e.templates[name]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("template %q not found", name)
	}
	return tmpl.ExecuteTemplate(w, path.Base(layoutFile), binding)
}

// Static serves the embedded css/ and js/ directories.
func Static() (http.FileSystem, error) {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static assets: %w", err)
	}
	return http.FS(sub), nil
}
