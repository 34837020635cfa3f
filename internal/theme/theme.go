// Package theme loads theme packages, validates their field schemas and merges stored page
// configuration with schema defaults.
package theme

import (
	"io/fs"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// InputType is the editor control a field is shown with. It has no effect on rendering.
type InputType string

const (
	InputText     InputType = "input"
	InputTextarea InputType = "textarea"
	InputSelect   InputType = "select"
	InputSwitch   InputType = "switch"
	InputNumber   InputType = "number"
	InputDate     InputType = "date"
)

var inputTypes = map[InputType]bool{
	InputText: true, InputTextarea: true, InputSelect: true,
	InputSwitch: true, InputNumber: true, InputDate: true,
}

// Rule is a validation rule applied to a resolved field value.
type Rule struct {
	Required bool   `yaml:"required,omitempty"`
	Pattern  string `yaml:"pattern,omitempty"`
	Message  string `yaml:"message,omitempty"`
}

// Option is one choice of a select field.
type Option struct {
	Label string `yaml:"label"`
	Value any    `yaml:"value"`
}

// Field describes one configurable value of a page.
type Field struct {
	Name      string    `yaml:"name"`
	Label     string    `yaml:"label,omitempty"`
	InputType InputType `yaml:"type,omitempty"`
	Default   any       `yaml:"default,omitempty"`
	Rules     []Rule    `yaml:"rules,omitempty"`
	Options   []Option  `yaml:"options,omitempty"`
}

// PageSchema is the ordered field list of one theme page.
type PageSchema struct {
	Name   string
	Fields []Field
}

// Theme is a parsed theme package.
type Theme struct {
	Name        string
	Version     string
	Description string
	Pages       []PageSchema
	SiteFields  []Field
	// FS holds templates/ and assets/ of the theme.
	FS fs.FS
}

// Page names with special meaning.
const (
	HomePage    = "home"
	ArticlePage = "article"
)

// Implicit field names added to every page unless the theme declares them.
const (
	FieldURL   = "url"
	FieldTitle = "title"
)

// ReservedNames cannot be used as page names or page URLs because the build writes
// generated files under them.
var ReservedNames = map[string]bool{
	"_assets":                 true,
	"_resources":              true,
	"_markdown_plugin_assets": true,
	"rss":                     true,
	"atom":                    true,
	"feed":                    true,
	"sitemap":                 true,
	"cname":                   true,
}

// IsReserved reports whether name collides with generated output, case-insensitively.
func IsReserved(name string) bool {
	return ReservedNames[strings.ToLower(name)]
}

// Page returns the schema of the named page.
func (t *Theme) Page(name string) (PageSchema, bool) {
	for _, p := range t.Pages {
		if p.Name == name {
			return p, true
		}
	}
	return PageSchema{}, false
}

// HasPage reports whether the theme declares the named page.
func (t *Theme) HasPage(name string) bool {
	_, ok := t.Page(name)
	return ok
}

// PageNames returns declared page names in declaration order.
func (t *Theme) PageNames() []string {
	names := make([]string, len(t.Pages))
	for i, p := range t.Pages {
		names[i] = p.Name
	}
	return names
}

// Schema returns the page fields with the implicit url and title fields appended.
func (t *Theme) Schema(page string) []Field {
	p, ok := t.Page(page)
	if !ok {
		return nil
	}
	return withImplicitFields(p)
}

func withImplicitFields(p PageSchema) []Field {
	fields := append([]Field(nil), p.Fields...)
	declared := make(map[string]bool, len(fields))
	for _, f := range fields {
		declared[f.Name] = true
	}
	if p.Name != HomePage && !declared[FieldURL] {
		fields = append(fields, Field{Name: FieldURL, Label: "URL", InputType: InputText, Default: p.Name})
	}
	if !declared[FieldTitle] {
		fields = append(fields, Field{Name: FieldTitle, Label: "Title", InputType: InputText, Default: titleCase(p.Name)})
	}
	return fields
}

var titleCaser = cases.Title(language.English)

func titleCase(name string) string {
	return titleCaser.String(strings.NewReplacer("-", " ", "_", " ").Replace(name))
}
