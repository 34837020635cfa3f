package site

import (
	"context"
	"encoding/xml"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/logfields"
)

const themeAssetsDir = "assets"

// stageCopyAssets copies the theme's static assets, the site icon and the CNAME file. Copy
// failures are reported as a warning stage error and do not fail the build.
func stageCopyAssets(ctx context.Context, bs *buildState) error {
	var problems []error
	if err := bs.copyThemeAssets(ctx); err != nil {
		problems = append(problems, err)
	}
	if err := bs.copyIcon(); err != nil {
		problems = append(problems, err)
	}
	if domain := strings.Trim(strings.TrimSpace(bs.site.CustomDomain), "/"); domain != "" {
		if err := writeFile(bs.stageDir, cnameFile, []byte(domain+"\n")); err != nil {
			problems = append(problems, foundationerrors.WrapError(err, foundationerrors.CategoryAsset, "failed to write CNAME").Warning().Build())
		}
	}
	resources, assets := bs.assets.totals()
	bs.report.Resources = resources
	bs.report.Assets += assets
	if len(problems) > 0 {
		return newWarnStageError(StageCopyAssets, errors.Join(problems...))
	}
	return nil
}

func (bs *buildState) copyThemeAssets(ctx context.Context) error {
	fsys := bs.theme.FS
	if fsys == nil {
		return nil
	}
	if _, err := fs.Stat(fsys, themeAssetsDir); err != nil {
		return nil
	}
	var problems []error
	err := fs.WalkDir(fsys, themeAssetsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			problems = append(problems, err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel := path.Join(assetsDir, strings.TrimPrefix(p, themeAssetsDir+"/"))
		data, err := fs.ReadFile(fsys, p)
		if err == nil {
			err = writeFile(bs.stageDir, rel, data)
		}
		if err != nil {
			slog.Warn("Failed to copy theme asset", logfields.BuildID(bs.id), logfields.Asset(p), logfields.Error(err))
			problems = append(problems, err)
			return nil
		}
		bs.report.Assets++
		return nil
	})
	if err != nil {
		return err
	}
	if len(problems) > 0 {
		return foundationerrors.WrapError(errors.Join(problems...), foundationerrors.CategoryAsset, "failed to copy theme assets").
			WithContext("theme", bs.theme.Name).Warning().Build()
	}
	return nil
}

func (bs *buildState) copyIcon() error {
	icon := bs.icon
	if icon == nil {
		return nil
	}
	var (
		data []byte
		err  error
	)
	if icon.resource != nil {
		data = icon.resource.Data
	} else {
		data, err = os.ReadFile(icon.path)
	}
	if err == nil {
		err = writeFile(bs.stageDir, "favicon."+icon.ext, data)
	}
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryAsset, "failed to copy site icon").Warning().Build()
	}
	return nil
}

type sitemapURLSet struct {
	XMLName xml.Name     `xml:"urlset"`
	Xmlns   string       `xml:"xmlns,attr"`
	URLs    []sitemapURL `xml:"url"`
}

type sitemapURL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// stageWriteSitemap lists every generated HTML page in sitemap.xml. Sitemap locations must be
// absolute, so nothing is written for sites without a base URL or custom domain.
func stageWriteSitemap(_ context.Context, bs *buildState) error {
	if bs.absBase == "" {
		return nil
	}
	modified := make(map[string]string, len(bs.views))
	for i, v := range bs.views {
		t := v.UpdatedAt
		if t.IsZero() {
			t = v.CreatedAt
		}
		if !t.IsZero() {
			modified[bs.files[i]] = t.UTC().Format("2006-01-02")
		}
	}

	var pages []string
	err := filepath.WalkDir(bs.stageDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".html") {
			return nil
		}
		rel, err := filepath.Rel(bs.stageDir, p)
		if err != nil {
			return err
		}
		pages = append(pages, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to enumerate pages").Fatal().Build()
	}
	sort.Strings(pages)

	base := bs.absBase
	set := sitemapURLSet{Xmlns: "http://www.sitemaps.org/schemas/sitemap/0.9"}
	generated := bs.generatedAt.UTC().Format("2006-01-02")
	for _, rel := range pages {
		loc := base + "/" + rel
		if rel == indexFile {
			loc = base + "/"
		}
		lastmod, ok := modified[rel]
		if !ok {
			lastmod = generated
		}
		set.URLs = append(set.URLs, sitemapURL{Loc: loc, LastMod: lastmod})
	}
	out, err := xml.MarshalIndent(set, "", "  ")
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryRender, "failed to encode sitemap").Fatal().Build()
	}
	if err := writeFile(bs.stageDir, sitemapFile, append([]byte(xml.Header), out...)); err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to write sitemap").Fatal().Build()
	}
	return nil
}

// stageCollectManifest enumerates the staging directory. Entries are mapped to their final
// location so the manifest is valid once staging is promoted.
func stageCollectManifest(_ context.Context, bs *buildState) error {
	m, err := collectManifest(bs.stageDir, bs.engine.outputDir)
	if err != nil {
		return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to collect manifest").Fatal().Build()
	}
	bs.manifest = m
	bs.report.Files = m.Len()
	return nil
}
