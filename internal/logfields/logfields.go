package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyBuildID    = "build_id"
	KeyPublishID  = "publish_id"
	KeyStage      = "stage"
	KeyPhase      = "phase"
	KeyDurationMS = "duration_ms"
	KeyPath       = "path"
	KeyPage       = "page"
	KeyArticle    = "article"
	KeyResource   = "resource"
	KeyAsset      = "asset"
	KeyTheme      = "theme"
	KeyRepo       = "repository"
	KeyBranch     = "branch"
	KeyURL        = "url"
	KeyCommit     = "commit"
	KeyCount      = "count"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func BuildID(id string) slog.Attr     { return slog.String(KeyBuildID, id) }
func PublishID(id string) slog.Attr   { return slog.String(KeyPublishID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Phase(name string) slog.Attr     { return slog.String(KeyPhase, name) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func Page(name string) slog.Attr      { return slog.String(KeyPage, name) }
func Article(id string) slog.Attr     { return slog.String(KeyArticle, id) }
func Resource(id string) slog.Attr    { return slog.String(KeyResource, id) }
func Asset(name string) slog.Attr     { return slog.String(KeyAsset, name) }
func Theme(name string) slog.Attr     { return slog.String(KeyTheme, name) }
func Repository(r string) slog.Attr   { return slog.String(KeyRepo, r) }
func Branch(b string) slog.Attr       { return slog.String(KeyBranch, b) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Commit(h string) slog.Attr       { return slog.String(KeyCommit, h) }
func Count(n int) slog.Attr           { return slog.Int(KeyCount, n) }
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
