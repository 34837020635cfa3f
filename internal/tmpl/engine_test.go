package tmpl

import (
	"bytes"
	"errors"
	"html/template"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/model"
	"github.com/pagepress/pagepress/internal/theme"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"templates/partials/layout.html": {Data: []byte(`{{define "title"}}<title>{{.Site.Settings.Name}}</title>{{end}}`)},
		"templates/home.html":            {Data: []byte(`{{template "title" .}}<h1>{{index .Page "title"}}</h1>{{range .Site.Articles}}<a href="{{.URL}}">{{.Title}}</a>{{end}}`)},
		"templates/article.html":         {Data: []byte(`<h1>{{.Article.Title}}</h1>{{.Article.HTML}}<p>{{.Helpers.FormatDate .Article.CreatedAt "MMMM D, YYYY"}}</p>`)},
		"templates/broken.html":          {Data: []byte(`{{.Missing.Field}}`)},
	}
}

func TestRenderWithPartials(t *testing.T) {
	e := NewEngine(testFS())
	env := Env{
		PageName: "home",
		Page:     theme.PageValues{"title": "<Welcome>"},
		Site: SiteData{
			Settings: model.Site{Name: "Notes"},
			Articles: []ArticleView{{Article: model.Article{Title: "First"}, URL: "/posts/first.html"}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, e.Render(&buf, "home", env))

	out := buf.String()
	assert.Contains(t, out, "<title>Notes</title>")
	assert.Contains(t, out, "<h1>&lt;Welcome&gt;</h1>")
	assert.Contains(t, out, `<a href="/posts/first.html">First</a>`)
}

func TestRenderArticleKeepsTrustedHTML(t *testing.T) {
	e := NewEngine(testFS())
	created := time.Date(2024, 1, 31, 10, 0, 0, 0, time.UTC)
	env := Env{Article: &ArticleView{
		Article: model.Article{Title: "Post", CreatedAt: created},
		HTML:    template.HTML("<p>body</p>"),
	}}

	var buf bytes.Buffer
	require.NoError(t, e.Render(&buf, "article", env))
	assert.Contains(t, buf.String(), "<p>body</p>")
	assert.Contains(t, buf.String(), "January 31, 2024")
	assert.Equal(t, "Post", env.Article.Title)
}

func TestRenderMissingTemplate(t *testing.T) {
	e := NewEngine(testFS())
	var buf bytes.Buffer
	err := e.Render(&buf, "about", Env{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
	assert.True(t, foundationerrors.HasCategory(err, foundationerrors.CategoryRender))
	assert.False(t, e.Has("about"))
	assert.True(t, e.Has("home"))
}

func TestRenderFailureWritesNothing(t *testing.T) {
	e := NewEngine(testFS())
	var buf bytes.Buffer
	err := e.Render(&buf, "broken", Env{})
	require.Error(t, err)
	assert.Zero(t, buf.Len())
}

func TestBuiltinThemeTemplatesRender(t *testing.T) {
	th, err := theme.NewStore("").Load(theme.DefaultName)
	require.NoError(t, err)
	e := NewEngine(th.FS)

	article := ArticleView{
		Article: model.Article{ID: "a", Title: "Hello", Tags: []string{"Go"}, CreatedAt: time.Now()},
		HTML:    template.HTML("<p>hi</p>"),
		URL:     "/posts/hello.html",
		Scripts: []string{"/_markdown_plugin_assets/math.js"},
	}
	site := SiteData{
		Settings:     model.Site{Name: "Notes", Menu: []model.MenuItem{{Label: "About", Link: "/about.html"}}},
		Articles:     []ArticleView{article},
		Tags:         []TagGroup{{Name: "Go", Slug: "go", Articles: []ArticleView{article}}},
		GeneratedAt:  time.Now(),
		CustomFields: theme.ResolveSiteFields(th, nil),
	}
	links := LinkTable{"home": "/", "archive": "/archive.html", "tags": "/tags.html", "article": "/posts", "_assets": "/_assets", "rss": "/rss.xml"}

	for _, page := range th.PageNames() {
		env := Env{PageName: page, Page: theme.MergeFields(th.Schema(page), nil), Site: site, Links: links, Helpers: Helpers{}}
		if page == theme.ArticlePage {
			a := article
			env.Article = &a
		}
		var buf bytes.Buffer
		require.NoError(t, e.Render(&buf, page, env), page)
		assert.True(t, strings.HasPrefix(buf.String(), "<!DOCTYPE html>"), page)
		assert.Contains(t, buf.String(), "Notes")
	}
}

func TestMomentLayout(t *testing.T) {
	ts := time.Date(2024, 3, 5, 14, 7, 9, 0, time.UTC)
	h := Helpers{}
	assert.Equal(t, "2024-03-05", h.FormatDate(ts, "YYYY-MM-DD"))
	assert.Equal(t, "March 5, 2024", h.FormatDate(ts, "MMMM D, YYYY"))
	assert.Equal(t, "Tue 02:07 PM", h.FormatDate(ts, "ddd hh:mm A"))
	assert.Equal(t, "at 14:07", h.FormatDate(ts, "[at] HH:mm"))
	assert.Equal(t, "2024-03-05", h.FormatDate(ts, nil))
}

func TestHelpers(t *testing.T) {
	h := Helpers{}
	assert.Equal(t, "https://x.org/a/b", h.JoinURL("https://x.org/", "/a/", "b"))
	assert.Equal(t, "/", h.JoinURL("", ""))
	assert.Equal(t, "héll…", h.Truncate("héllo world", 4))
	assert.Equal(t, "short", h.Truncate("short", 10))

	articles := []ArticleView{{}, {}, {}}
	assert.Len(t, h.Limit(articles, 2), 2)
	assert.Len(t, h.Limit(articles, float64(1)), 1)
	assert.Len(t, h.Limit(articles, "2"), 2)
	assert.Len(t, h.Limit(articles, nil), 3)
}
