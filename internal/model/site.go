package model

import (
	"strings"
)

// FeedMode selects whether and how syndication feeds are emitted.
type FeedMode string

const (
	FeedNone     FeedMode = "none"
	FeedAbstract FeedMode = "abstract"
	FeedFull     FeedMode = "full"
)

// DefaultFeedLength is used when feeds are enabled without an explicit length.
const DefaultFeedLength = 20

// Feed holds syndication settings.
type Feed struct {
	Mode   FeedMode `json:"mode" yaml:"mode"`
	Length int      `json:"length" yaml:"length"`
}

// Enabled reports whether any feed document should be written.
func (f Feed) Enabled() bool {
	return f.Mode == FeedAbstract || f.Mode == FeedFull
}

// MenuItem is one entry of the site navigation.
type MenuItem struct {
	Label string `json:"label" yaml:"label"`
	Link  string `json:"link" yaml:"link"`
}

// Site is the global configuration of a generated website. The build engine never mutates it.
type Site struct {
	Name         string                    `json:"name" yaml:"name"`
	Description  string                    `json:"description" yaml:"description"`
	Language     string                    `json:"language" yaml:"language"`
	Icon         string                    `json:"icon" yaml:"icon"`
	Feed         Feed                      `json:"feed" yaml:"feed"`
	CustomDomain string                    `json:"customDomain" yaml:"custom_domain"`
	BaseURL      string                    `json:"baseUrl" yaml:"base_url"`
	Menu         []MenuItem                `json:"menu" yaml:"menu"`
	Theme        string                    `json:"theme" yaml:"theme"`
	CustomFields map[string]map[string]any `json:"customFields" yaml:"custom_fields"`
}

// AbsoluteBase returns the absolute URL prefix of the site without a trailing slash, or an
// empty string when neither a base URL nor a custom domain is configured.
func (s Site) AbsoluteBase() string {
	if s.BaseURL != "" {
		return strings.TrimRight(s.BaseURL, "/")
	}
	if s.CustomDomain != "" {
		return "https://" + strings.Trim(s.CustomDomain, "/")
	}
	return ""
}

// ThemeFields returns the custom field values stored for the given theme.
func (s Site) ThemeFields(theme string) map[string]any {
	if s.CustomFields == nil {
		return nil
	}
	return s.CustomFields[theme]
}
