package storage

import (
	"fmt"
	"regexp"
	"strings"
)

// directURLPattern matches direct bucket URLs so legacy records can be
// rewritten to proxy URLs.
var directURLPattern = regexp.MustCompile(`^https?://[^/]+/(?:[^/]+/)?(library/.+|experiments/.+)$`)

// VideoKey builds the canonical storage key for an experiment comparison video.
func VideoKey(experimentID, comparisonID, modelLabel string) string {
	return fmt.Sprintf("experiments/%s/comparisons/%s/%s.mp4", experimentID, comparisonID, modelLabel)
}

// LibraryKey builds the storage key for a shared library video.
func LibraryKey(name string) string {
	return "library/" + strings.TrimLeft(name, "/")
}

// ProxyVideoURL returns the URL clients use to fetch a key through the
// authenticated proxy rather than hitting the bucket directly.
func (c *Client) ProxyVideoURL(key string) string {
	return c.publicBaseURL + "/api/video/" + strings.TrimLeft(key, "/")
}

// ConvertToProxyURL rewrites a direct bucket URL to its proxy equivalent.
// URLs that are already proxied, or not recognisable, pass through unchanged.
func (c *Client) ConvertToProxyURL(raw string) string {
	match := directURLPattern.FindStringSubmatch(raw)
	if match == nil {
		return raw
	}
	return c.ProxyVideoURL(match[1])
}
