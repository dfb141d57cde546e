package crawl

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/alexei18/PromtII/pkg/logging"
)

var locPattern = regexp.MustCompile(`<loc>(.*?)</loc>`)

const maxSubSitemaps = 5

// ResolveSitemap fetches {origin}/sitemap.xml and returns the in-domain page
// URLs it lists. Sitemap indexes are followed one level deep, bounded at
// maxSubSitemaps. A missing or broken sitemap is not an error; the caller
// falls back to recursive discovery.
func ResolveSitemap(ctx context.Context, fetcher *Fetcher, rootURL string, logger logging.Logger) []string {
	root, err := url.Parse(rootURL)
	if err != nil || root.Host == "" {
		return nil
	}

	sitemapURL := root.Scheme + "://" + root.Host + "/sitemap.xml"
	data, status, err := fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		sitemapResolutionsTotal.WithLabelValues("missing").Inc()
		if logger != nil {
			logger.WithFields(logging.Fields{
				"url":    sitemapURL,
				"status": status,
			}).Info("No sitemap available, will crawl recursively")
		}
		return nil
	}

	entries := extractLocEntries(data)

	// A sitemap index lists further .xml sitemaps instead of pages.
	var pages []string
	var subSitemaps []string
	for _, entry := range entries {
		if strings.HasSuffix(strings.ToLower(entry), ".xml") {
			subSitemaps = append(subSitemaps, entry)
		} else {
			pages = append(pages, entry)
		}
	}

	if len(subSitemaps) > maxSubSitemaps {
		subSitemaps = subSitemaps[:maxSubSitemaps]
	}
	for _, sub := range subSitemaps {
		if ctx.Err() != nil {
			break
		}
		subData, _, subErr := fetcher.Fetch(ctx, sub)
		if subErr != nil {
			if logger != nil {
				logger.WithFields(logging.Fields{
					"url":   sub,
					"error": subErr.Error(),
				}).Warn("Failed to fetch sub-sitemap, continuing")
			}
			continue
		}
		for _, entry := range extractLocEntries(subData) {
			if !strings.HasSuffix(strings.ToLower(entry), ".xml") {
				pages = append(pages, entry)
			}
		}
	}

	filtered := filterSameSite(pages, root.Host)
	if len(filtered) > 0 {
		sitemapResolutionsTotal.WithLabelValues("resolved").Inc()
	} else {
		sitemapResolutionsTotal.WithLabelValues("empty").Inc()
	}
	return filtered
}

func extractLocEntries(data []byte) []string {
	matches := locPattern.FindAllStringSubmatch(string(data), -1)
	entries := make([]string, 0, len(matches))
	for _, m := range matches {
		if entry := strings.TrimSpace(m[1]); entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}

func filterSameSite(urls []string, rootHost string) []string {
	var result []string
	seen := make(map[string]bool)
	for _, raw := range urls {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			continue
		}
		if !sameSite(rootHost, u.Host) {
			continue
		}
		normalized := normalizeURL(u)
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		result = append(result, normalized)
	}
	return result
}
