package crawler

import (
	"net/url"
	"strings"
)

// skipExtensions are URL suffixes the crawler never visits: media, archives,
// and static assets that cannot be listing or song pages.
var skipExtensions = []string{
	".mp3", ".zip", ".rar", ".jpg", ".png", ".gif",
	".pdf", ".txt", ".xml", ".css", ".js",
}

// LinkFilter resolves discovered hrefs against their source page and decides
// whether the result is crawlable.
//
// The filter is deliberately blunt: any URL carrying a query or fragment is
// discarded outright rather than normalized, and no trailing-slash or case
// folding is applied. Listing and song pages on the target site are plain
// .html paths, so anything else is noise.
type LinkFilter struct {
	domain string
}

// NewLinkFilter returns a filter accepting only URLs containing domain.
func NewLinkFilter(domain string) *LinkFilter {
	return &LinkFilter{domain: domain}
}

// Normalize resolves href against base and returns the absolute URL plus
// true when it is crawlable.
func (f *LinkFilter) Normalize(base, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := baseURL.ResolveReference(ref).String()

	if !strings.Contains(abs, f.domain) {
		return "", false
	}
	if strings.ContainsAny(abs, "#?") {
		return "", false
	}
	for _, ext := range skipExtensions {
		if strings.HasSuffix(abs, ext) {
			return "", false
		}
	}
	return abs, true
}
