package theme

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/store"
)

func parseTheme(t *testing.T, descriptor string) *Theme {
	t.Helper()
	th, err := Parse("test", fstest.MapFS{"config.yaml": {Data: []byte(descriptor)}})
	require.NoError(t, err)
	return th
}

func TestMergeFieldsRule(t *testing.T) {
	fields := []Field{
		{Name: "a", Default: "da"},
		{Name: "b", Default: "db"},
		{Name: "c", Default: "dc"},
		{Name: "d", Default: "dd"},
		{Name: "e"},
	}
	stored := map[string]any{
		"a":       "stored",
		"b":       nil,
		"c":       "",
		"e":       false,
		"unknown": "dropped",
	}

	got := MergeFields(fields, stored)

	assert.Equal(t, PageValues{"a": "stored", "b": "db", "c": "dc", "d": "dd", "e": false}, got)
}

func TestMergeFieldsWithoutDefault(t *testing.T) {
	got := MergeFields([]Field{{Name: "x"}}, nil)
	v, ok := got["x"]
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestParseKeepsPageOrder(t *testing.T) {
	th := parseTheme(t, `
pages:
  zeta:
    - name: title
  home:
  alpha: []
`)
	assert.Equal(t, []string{"zeta", "home", "alpha"}, th.PageNames())
	assert.Equal(t, InputText, th.Pages[0].Fields[0].InputType)
}

func TestParseJSONDescriptor(t *testing.T) {
	th, err := Parse("json", fstest.MapFS{"config.json": {Data: []byte(`{"pages": {"home": [{"name": "intro", "type": "textarea"}], "b": []}}`)}})
	require.NoError(t, err)
	assert.Equal(t, "json", th.Name)
	assert.Equal(t, []string{"home", "b"}, th.PageNames())
	assert.Equal(t, InputTextarea, th.Pages[0].Fields[0].InputType)
}

func TestSchemaAddsImplicitFields(t *testing.T) {
	th := parseTheme(t, `
pages:
  home: []
  about-me: []
  article:
    - name: url
      default: posts
`)
	home := th.Schema("home")
	require.Len(t, home, 1)
	assert.Equal(t, FieldTitle, home[0].Name)
	assert.Equal(t, "Home", home[0].Default)

	about := MergeFields(th.Schema("about-me"), nil)
	assert.Equal(t, "about-me", about[FieldURL])
	assert.Equal(t, "About Me", about[FieldTitle])

	article := th.Schema("article")
	assert.Len(t, article, 2)
	assert.Equal(t, "posts", article[0].Default)
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]string{
		"no pages":        "pages: {}\n",
		"reserved page":   "pages:\n  rss: []\n",
		"reserved mixed":  "pages:\n  _Assets: []\n",
		"nameless field":  "pages:\n  home:\n    - label: x\n",
		"duplicate field": "pages:\n  home:\n    - name: a\n    - name: a\n",
		"unknown type":    "pages:\n  home:\n    - name: a\n      type: colorpicker\n",
		"bad pattern":     "pages:\n  home:\n    - name: a\n      rules:\n        - pattern: \"[\"\n",
		"url collision":   "pages:\n  about: []\n  contact:\n    - name: url\n      default: about\n",
		"reserved url":    "pages:\n  contact:\n    - name: url\n      default: sitemap\n",
		"escaping url":    "pages:\n  contact:\n    - name: url\n      default: ../up\n",
	}
	for name, descriptor := range tests {
		t.Run(name, func(t *testing.T) {
			err := parseTheme(t, descriptor).Validate()
			require.Error(t, err)
			assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryConfig))
		})
	}
}

func TestValidateValuesRules(t *testing.T) {
	th := parseTheme(t, `
pages:
  article:
    - name: url
      default: posts
      rules:
        - required: true
        - pattern: "^[a-z/]+$"
          message: lowercase only
`)
	require.NoError(t, th.Validate())

	ok := map[string]PageValues{"article": MergeFields(th.Schema("article"), map[string]any{"url": "blog"})}
	require.NoError(t, th.ValidateValues(ok))

	blank := map[string]PageValues{"article": MergeFields(th.Schema("article"), map[string]any{"url": "  "})}
	require.Error(t, th.ValidateValues(blank))

	bad := map[string]PageValues{"article": MergeFields(th.Schema("article"), map[string]any{"url": "Blog"})}
	err := th.ValidateValues(bad)
	require.Error(t, err)
	ce, isClassified := foundationerrors.AsClassified(err)
	require.True(t, isClassified)
	assert.Equal(t, "lowercase only", ce.Message())
}

func TestValidateSiteValues(t *testing.T) {
	th := parseTheme(t, `
site_fields:
  - name: accent
    default: "#ffffff"
    rules:
      - pattern: "^#[0-9a-f]{6}$"
pages:
  home: []
`)
	require.NoError(t, th.ValidateSiteValues(ResolveSiteFields(th, nil)))
	err := th.ValidateSiteValues(ResolveSiteFields(th, map[string]any{"accent": "red"}))
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryConfig))
}

func TestPageURL(t *testing.T) {
	assert.Equal(t, "", PageURL(HomePage, PageValues{"url": "ignored"}))
	assert.Equal(t, "docs/intro", PageURL("intro", PageValues{"url": "/docs/intro/"}))
	assert.Equal(t, "intro", PageURL("intro", PageValues{"url": 5}))
}

func TestResolvePagesReadsStore(t *testing.T) {
	ctx := context.Background()
	th := parseTheme(t, "pages:\n  home:\n    - name: intro\n      default: hi\n  about: []\n")
	cs := store.NewMemory()
	require.NoError(t, cs.Set(ctx, store.PageValuesPath("test", "about"), map[string]any{"url": "me", "extra": 1}))

	values, err := ResolvePages(ctx, th, cs)
	require.NoError(t, err)
	assert.Equal(t, PageValues{"intro": "hi", "title": "Home"}, values["home"])
	assert.Equal(t, PageValues{"url": "me", "title": "About"}, values["about"])
}

func TestStoreLoadsBuiltinDefault(t *testing.T) {
	s := NewStore("")
	th, err := s.Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultName, th.Name)
	assert.True(t, th.HasPage(HomePage))
	assert.True(t, th.HasPage(ArticlePage))

	_, err = fsStat(th, "templates/home.html")
	require.NoError(t, err)
	_, err = fsStat(th, "assets/style.css")
	require.NoError(t, err)
}

func TestStoreListReportsBrokenThemes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "broken"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken", "config.yaml"), []byte("pages:\n  feed: []\n"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "plain"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plain", "config.yaml"), []byte("pages:\n  home: []\n"), 0o600))

	themes, errs := NewStore(dir).List()

	var names []string
	for _, th := range themes {
		names = append(names, th.Name)
	}
	assert.Equal(t, []string{"default", "plain"}, names)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "broken")
}

func TestStoreDirectoryShadowsBuiltin(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "default"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "default", "config.yaml"), []byte("version: \"9\"\npages:\n  home: []\n"), 0o600))

	th, err := NewStore(dir).Load("default")
	require.NoError(t, err)
	assert.Equal(t, "9", th.Version)
	assert.False(t, th.HasPage(ArticlePage))
}

func TestStoreLoadUnknownTheme(t *testing.T) {
	_, err := NewStore(t.TempDir()).Load("nope")
	require.Error(t, err)
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryNotFound))

	_, err = NewStore("").Load("../etc")
	require.Error(t, err)
}

func fsStat(th *Theme, name string) (any, error) {
	return fs.Stat(th.FS, name)
}
