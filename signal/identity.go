package signal

import (
	"net/url"
	"strings"
)

// NormalizeKeyword lowercases a search phrase, trims it, and collapses
// interior whitespace so "Email Marketing" and "email marketing " produce
// the same text.
func NormalizeKeyword(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// NormalizeLocale lowercases a locale tag ("US", "en-us") for identity use.
func NormalizeLocale(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if locale == "" {
		return "us"
	}
	return locale
}

// KeywordKey is the identity key for a keyword entity.
func KeywordKey(text, locale string) string {
	return NormalizeKeyword(text) + "|" + NormalizeLocale(locale)
}

// CanonicalURL normalizes a page URL for identity: lowercase scheme and
// host, default ports stripped, fragment dropped, trailing slash trimmed.
// Returns the input unchanged when it does not parse.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(raw, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && strings.HasSuffix(u.Host, ":80")) ||
		(u.Scheme == "https" && strings.HasSuffix(u.Host, ":443")) {
		u.Host = u.Host[:strings.LastIndex(u.Host, ":")]
	}
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}
