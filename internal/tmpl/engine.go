// Package tmpl renders theme page templates with html/template.
//
// Templates live in the theme's templates/ directory: one <page>.html per page plus shared
// definitions under templates/partials/. Each page template is parsed once, on first use,
// into its own set together with the partials.
package tmpl

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
)

// ErrTemplateNotFound is returned when a page has no template file.
var ErrTemplateNotFound = errors.New("template not found")

const (
	templatesDir = "templates"
	partialsDir  = "templates/partials"
)

// Engine is safe for concurrent Render calls.
type Engine struct {
	fsys  fs.FS
	funcs template.FuncMap

	once     sync.Once
	partials *template.Template
	initErr  error

	mu    sync.Mutex
	pages map[string]*template.Template
}

// NewEngine creates an engine over a theme filesystem.
func NewEngine(fsys fs.FS) *Engine {
	return &Engine{
		fsys:  fsys,
		funcs: FuncMap(),
		pages: make(map[string]*template.Template),
	}
}

// FuncMap returns the functions available to every template in addition to Env.Helpers.
func FuncMap() template.FuncMap {
	h := Helpers{}
	return template.FuncMap{
		"formatDate": h.FormatDate,
		"joinURL":    h.JoinURL,
		"truncate":   h.Truncate,
		"slugify":    h.Slugify,
		"lower":      strings.ToLower,
		"upper":      strings.ToUpper,
		"safeHTML":   func(s string) template.HTML { return template.HTML(s) }, // #nosec G203 -- theme-authored
	}
}

// Render executes the template of page into w. Output is buffered so a failing template
// writes nothing.
func (e *Engine) Render(w io.Writer, page string, env Env) error {
	t, err := e.page(page)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, page, env); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryRender, "failed to execute template").
			WithContext("page", page).Fatal().Build()
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// Has reports whether the page has a template file.
func (e *Engine) Has(page string) bool {
	_, err := fs.Stat(e.fsys, path.Join(templatesDir, page+".html"))
	return err == nil
}

func (e *Engine) page(page string) (*template.Template, error) {
	e.once.Do(e.loadPartials)
	if e.initErr != nil {
		return nil, e.initErr
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.pages[page]; ok {
		return t, nil
	}

	name := path.Join(templatesDir, page+".html")
	src, err := fs.ReadFile(e.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, foundationerrors.WrapError(ErrTemplateNotFound, foundationerrors.CategoryRender, "missing page template").
			WithContext("page", page).WithContext("path", name).Fatal().Build()
	}
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryRender, "failed to read template").
			WithContext("path", name).Fatal().Build()
	}

	set, err := e.partials.Clone()
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryInternal, "failed to clone partials").Build()
	}
	t, err := set.New(page).Parse(string(src))
	if err != nil {
		return nil, foundationerrors.WrapError(err, foundationerrors.CategoryRender, "failed to parse template").
			WithContext("path", name).Fatal().Build()
	}
	e.pages[page] = t
	return t, nil
}

func (e *Engine) loadPartials() {
	root := template.New("").Funcs(e.funcs)
	entries, err := fs.ReadDir(e.fsys, partialsDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		e.initErr = foundationerrors.WrapError(err, foundationerrors.CategoryRender, "failed to read partials").Build()
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || path.Ext(entry.Name()) != ".html" {
			continue
		}
		name := path.Join(partialsDir, entry.Name())
		src, err := fs.ReadFile(e.fsys, name)
		if err != nil {
			e.initErr = foundationerrors.WrapError(err, foundationerrors.CategoryRender, "failed to read partial").
				WithContext("path", name).Build()
			return
		}
		if _, err := root.New(entry.Name()).Parse(string(src)); err != nil {
			e.initErr = foundationerrors.WrapError(err, foundationerrors.CategoryRender, fmt.Sprintf("failed to parse partial %s", entry.Name())).
				WithContext("path", name).Fatal().Build()
			return
		}
	}
	e.partials = root
}
