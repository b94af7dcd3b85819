package cli

import (
	"net/url"
	"strings"
	"time"
)

// domainFromURL reduces a citation URL to its display domain, stripping a
// leading "www.". Unparseable input comes back verbatim rather than hiding
// the citation.
func domainFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// formatTimestamp renders a unix-millisecond thread timestamp for listings.
func formatTimestamp(millis int64) string {
	if millis == 0 {
		return ""
	}
	return time.UnixMilli(millis).Format("Jan 2 15:04")
}
