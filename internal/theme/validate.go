package theme

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
)

// Validate checks the theme schema. Every failure is a configuration error.
func (t *Theme) Validate() error {
	if len(t.Pages) == 0 {
		return t.configError("theme declares no pages", nil)
	}

	pages := make(map[string]bool, len(t.Pages))
	for _, p := range t.Pages {
		if p.Name == "" {
			return t.configError("page without a name", nil)
		}
		if pages[p.Name] {
			return t.configError("duplicate page", map[string]any{"page": p.Name})
		}
		pages[p.Name] = true
		if IsReserved(p.Name) {
			return t.configError("page name is reserved", map[string]any{"page": p.Name})
		}
		if err := t.validateFields(p.Name, p.Fields); err != nil {
			return err
		}
	}
	if err := t.validateFields("site", t.SiteFields); err != nil {
		return err
	}

	defaults := make(map[string]PageValues, len(t.Pages))
	for _, p := range t.Pages {
		defaults[p.Name] = MergeFields(t.Schema(p.Name), nil)
	}
	return t.checkURLs(defaults)
}

func (t *Theme) validateFields(page string, fields []Field) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return t.configError("field without a name", map[string]any{"page": page})
		}
		if seen[f.Name] {
			return t.configError("duplicate field", map[string]any{"page": page, "field": f.Name})
		}
		seen[f.Name] = true
		if f.InputType != "" && !inputTypes[f.InputType] {
			return t.configError("unknown field type", map[string]any{"page": page, "field": f.Name, "type": string(f.InputType)})
		}
		for _, r := range f.Rules {
			if r.Pattern == "" {
				continue
			}
			if _, err := regexp.Compile(r.Pattern); err != nil {
				return t.configError("invalid field pattern", map[string]any{"page": page, "field": f.Name, "pattern": r.Pattern})
			}
		}
	}
	return nil
}

// ValidateValues checks field rules against resolved values and that resolved page URLs are
// usable and distinct.
func (t *Theme) ValidateValues(values map[string]PageValues) error {
	for _, p := range t.Pages {
		resolved := values[p.Name]
		for _, f := range t.Schema(p.Name) {
			if err := t.checkRules(p.Name, f, resolved[f.Name]); err != nil {
				return err
			}
		}
	}
	return t.checkURLs(values)
}

// ValidateSiteValues checks the rules of the theme's site fields against resolved values.
func (t *Theme) ValidateSiteValues(values PageValues) error {
	for _, f := range t.SiteFields {
		if err := t.checkRules("site", f, values[f.Name]); err != nil {
			return err
		}
	}
	return nil
}

func (t *Theme) checkRules(page string, f Field, value any) error {
	for _, r := range f.Rules {
		ctx := map[string]any{"page": page, "field": f.Name}
		if r.Required && isEmpty(value) {
			return t.configError(ruleMessage(r, fmt.Sprintf("%s is required", fieldLabel(f))), ctx)
		}
		if r.Pattern != "" && !isEmpty(value) {
			re, err := regexp.Compile(r.Pattern)
			if err != nil {
				return t.configError("invalid field pattern", ctx)
			}
			if !re.MatchString(fmt.Sprint(value)) {
				return t.configError(ruleMessage(r, fmt.Sprintf("%s does not match %s", fieldLabel(f), r.Pattern)), ctx)
			}
		}
	}
	return nil
}

func (t *Theme) checkURLs(values map[string]PageValues) error {
	owners := make(map[string]string, len(t.Pages))
	for _, p := range t.Pages {
		if p.Name == HomePage {
			continue
		}
		u := PageURL(p.Name, values[p.Name])
		if u == "" || u == "." || strings.HasPrefix(path.Clean(u), "..") {
			return t.configError("invalid page url", map[string]any{"page": p.Name, "url": u})
		}
		if IsReserved(u) || u == "index" {
			return t.configError("page url is reserved", map[string]any{"page": p.Name, "url": u})
		}
		key := strings.ToLower(u)
		if other, dup := owners[key]; dup {
			return t.configError("pages resolve to the same url", map[string]any{"page": p.Name, "other": other, "url": u})
		}
		owners[key] = p.Name
	}
	return nil
}

// PageURL returns the output-relative URL of a page without extension. The home page has
// an empty URL.
func PageURL(page string, values PageValues) string {
	if page == HomePage {
		return ""
	}
	if s, ok := values[FieldURL].(string); ok {
		if u := strings.Trim(strings.TrimSpace(s), "/"); u != "" {
			return path.Clean(u)
		}
	}
	return page
}

func (t *Theme) configError(msg string, ctx map[string]any) error {
	b := foundationerrors.ConfigError(msg).WithContext("theme", t.Name)
	for k, v := range ctx {
		b = b.WithContext(k, v)
	}
	return b.Build()
}

func isEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	default:
		return false
	}
}

func ruleMessage(r Rule, fallback string) string {
	if r.Message != "" {
		return r.Message
	}
	return fallback
}

func fieldLabel(f Field) string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}
