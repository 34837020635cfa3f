package tmpl

import (
	"html/template"
	"time"

	"github.com/pagepress/pagepress/internal/model"
	"github.com/pagepress/pagepress/internal/theme"
)

// Env is the data a page template is executed against. It is passed by value and never
// modified by the engine.
type Env struct {
	// PageName is the theme page being rendered.
	PageName string
	Page     theme.PageValues
	Site     SiteData
	Links    LinkTable
	// Article is set only while rendering the article page.
	Article *ArticleView
	Helpers Helpers
}

// SiteData is the site-wide part of Env shared by every page of one build.
type SiteData struct {
	Settings     model.Site
	Articles     []ArticleView
	Tags         []TagGroup
	GeneratedAt  time.Time
	CustomFields theme.PageValues
}

// TagGroup lists the articles carrying one tag, newest first.
type TagGroup struct {
	Name     string
	Slug     string
	Articles []ArticleView
}

// LinkTable maps page names and well-known generated files to root-relative URLs.
type LinkTable map[string]string

// ArticleView is a build-local copy of an article augmented with rendering output.
type ArticleView struct {
	model.Article
	HTML        template.HTML
	URL         string
	AbsoluteURL string
	Summary     string
	// Stylesheets and Scripts are the extension assets the article needs.
	Stylesheets []string
	Scripts     []string
}
