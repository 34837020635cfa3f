package site

import (
	"context"

	"github.com/gorilla/feeds"

	foundationerrors "github.com/pagepress/pagepress/internal/foundation/errors"
	"github.com/pagepress/pagepress/internal/model"
)

// stageWriteFeeds writes RSS, Atom and JSON feeds of the most recent articles when the site
// enables feeds.
func stageWriteFeeds(ctx context.Context, bs *buildState) error {
	if !bs.site.Feed.Enabled() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	feed := bs.feed()
	docs := []struct {
		name   string
		encode func() (string, error)
	}{
		{rssFile, feed.ToRss},
		{atomFile, feed.ToAtom},
		{jsonFeedFile, feed.ToJSON},
	}
	for _, d := range docs {
		body, err := d.encode()
		if err != nil {
			return foundationerrors.WrapError(err, foundationerrors.CategoryRender, "failed to encode feed").
				WithContext("path", d.name).Fatal().Build()
		}
		if err := writeFile(bs.stageDir, d.name, []byte(body)); err != nil {
			return foundationerrors.WrapError(err, foundationerrors.CategoryFileSystem, "failed to write feed").
				WithContext("path", d.name).Fatal().Build()
		}
	}
	bs.report.Feeds = len(docs)
	bs.engine.recorder.AddPagesRendered("feed", len(docs))
	return nil
}

func (bs *buildState) feed() *feeds.Feed {
	home := bs.links["home"]
	if bs.absBase != "" {
		home = bs.absBase + "/"
	}
	f := &feeds.Feed{
		Title:       bs.site.Name,
		Link:        &feeds.Link{Href: home},
		Description: bs.site.Description,
		Created:     bs.generatedAt,
		Updated:     bs.generatedAt,
		Id:          home,
	}
	if len(bs.views) > 0 {
		f.Updated = bs.views[0].UpdatedAt
		if f.Updated.IsZero() {
			f.Updated = bs.views[0].CreatedAt
		}
	}
	n := min(bs.site.Feed.Length, len(bs.views))
	for _, v := range bs.views[:n] {
		item := &feeds.Item{
			Title:       v.Title,
			Link:        &feeds.Link{Href: v.AbsoluteURL},
			Id:          v.AbsoluteURL,
			Description: v.Summary,
			Created:     v.CreatedAt,
			Updated:     v.UpdatedAt,
		}
		if bs.site.Feed.Mode == model.FeedFull {
			item.Content = string(v.HTML)
		}
		f.Items = append(f.Items, item)
	}
	return f
}
