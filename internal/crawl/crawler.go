package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexei18/PromtII/internal/extract"
	"github.com/alexei18/PromtII/pkg/logging"
)

// ErrRootFetch means the start URL itself could not be fetched, so there is
// nothing to discover from.
var ErrRootFetch = errors.New("root url could not be fetched")

// Asset and document URLs are never worth fetching as pages.
var binaryExtPattern = regexp.MustCompile(`(?i)\.(jpg|jpeg|png|gif|webp|css|js|ico|xml|pdf|zip|docx?)$`)

// Options bound a discovery run.
type Options struct {
	MaxDepth         int
	MaxURLs          int
	MaxPerDepth      int
	Concurrency      int
	StepTimeout      time.Duration
	SitemapThreshold int
}

func DefaultOptions() Options {
	return Options{
		MaxDepth:         2,
		MaxURLs:          30,
		MaxPerDepth:      200,
		Concurrency:      10,
		StepTimeout:      20 * time.Second,
		SitemapThreshold: 5,
	}
}

func (o Options) normalized() Options {
	if o.MaxDepth < 1 {
		o.MaxDepth = 1
	}
	if o.MaxURLs < 1 {
		o.MaxURLs = 1
	}
	if o.MaxPerDepth < 1 {
		o.MaxPerDepth = 200
	}
	if o.Concurrency < 1 {
		o.Concurrency = 10
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = 20 * time.Second
	}
	if o.SitemapThreshold < 0 {
		o.SitemapThreshold = 5
	}
	return o
}

// Crawler discovers a site's URLs, preferring the sitemap and falling back
// to breadth-first link discovery.
type Crawler struct {
	fetcher *Fetcher
	logger  logging.Logger
}

func NewCrawler(fetcher *Fetcher, logger logging.Logger) *Crawler {
	return &Crawler{fetcher: fetcher, logger: logger}
}

// Discover returns unique page URLs for a site in discovery order, starting
// with the root. When the sitemap lists enough pages the recursive walk is
// skipped entirely.
func (c *Crawler) Discover(ctx context.Context, rootURL string, opts Options) ([]string, error) {
	opts = opts.normalized()

	root, err := url.Parse(rootURL)
	if err != nil || root.Host == "" || (root.Scheme != "http" && root.Scheme != "https") {
		return nil, fmt.Errorf("invalid root url %q", rootURL)
	}
	rootNormalized := normalizeURL(root)

	sitemapURLs := ResolveSitemap(ctx, c.fetcher, rootURL, c.logger)
	if len(sitemapURLs) >= opts.SitemapThreshold && opts.SitemapThreshold > 0 {
		if c.logger != nil {
			c.logger.WithFields(logging.Fields{
				"root":  rootURL,
				"found": len(sitemapURLs),
			}).Info("Using sitemap URLs, skipping recursive crawl")
		}
		urls := prependRoot(rootNormalized, sitemapURLs)
		if len(urls) > opts.MaxURLs {
			urls = urls[:opts.MaxURLs]
		}
		discoveredURLsTotal.Add(float64(len(urls)))
		return urls, nil
	}

	urls, err := c.discoverRecursive(ctx, root, rootNormalized, opts)
	if err != nil {
		return nil, err
	}

	// Sitemap entries below the fallback threshold still count; merge them
	// after the recursive results.
	seen := make(map[string]bool, len(urls))
	for _, u := range urls {
		seen[u] = true
	}
	for _, u := range sitemapURLs {
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	if len(urls) > opts.MaxURLs {
		urls = urls[:opts.MaxURLs]
	}
	discoveredURLsTotal.Add(float64(len(urls)))
	return urls, nil
}

func (c *Crawler) discoverRecursive(ctx context.Context, root *url.URL, rootNormalized string, opts Options) ([]string, error) {
	visited := map[string]bool{rootNormalized: true}
	ordered := []string{rootNormalized}
	var mu sync.Mutex

	frontier := []string{rootNormalized}

	for depth := 0; depth < opts.MaxDepth && len(frontier) > 0; depth++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		type fetchResult struct {
			source string
			record extract.PageRecord
		}
		results := make([]fetchResult, len(frontier))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Concurrency)
		for i, pageURL := range frontier {
			i, pageURL := i, pageURL
			g.Go(func() error {
				stepCtx, cancel := context.WithTimeout(gctx, opts.StepTimeout)
				defer cancel()
				results[i] = fetchResult{
					source: pageURL,
					record: c.fetcher.FetchAndExtract(stepCtx, pageURL),
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if depth == 0 && results[0].record.Failed() {
			return nil, fmt.Errorf("%w: %s", ErrRootFetch, rootNormalized)
		}

		var next []string
		for _, result := range results {
			if result.record.Failed() {
				continue
			}
			for _, link := range result.record.InternalLinks {
				normalized, ok := normalizeCrawlable(link, root.Host)
				if !ok {
					continue
				}
				mu.Lock()
				if visited[normalized] || len(ordered) >= opts.MaxURLs {
					mu.Unlock()
					continue
				}
				visited[normalized] = true
				ordered = append(ordered, normalized)
				mu.Unlock()

				if len(next) < opts.MaxPerDepth {
					next = append(next, normalized)
				}
			}
		}

		mu.Lock()
		full := len(ordered) >= opts.MaxURLs
		mu.Unlock()
		if full {
			break
		}
		frontier = next
	}

	return ordered, nil
}

// normalizeCrawlable filters a link down to a crawlable same-site page URL.
func normalizeCrawlable(link, rootHost string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	if !sameSite(rootHost, u.Host) {
		return "", false
	}
	if binaryExtPattern.MatchString(u.Path) {
		return "", false
	}
	return normalizeURL(u), true
}

// normalizeURL reduces a URL to origin plus path so that tracking queries and
// fragments never create duplicate crawl targets.
func normalizeURL(u *url.URL) string {
	normalized := &url.URL{
		Scheme: u.Scheme,
		Host:   strings.ToLower(u.Host),
		Path:   strings.TrimSuffix(u.Path, "/"),
	}
	return normalized.String()
}

// sameSite treats subdomains as in-domain, so blog.example.com belongs to
// a crawl rooted at example.com.
func sameSite(baseHost, linkHost string) bool {
	base := stripWWW(baseHost)
	link := stripWWW(linkHost)
	return link == base || strings.HasSuffix(link, "."+base)
}

func stripWWW(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}

func prependRoot(rootNormalized string, urls []string) []string {
	result := make([]string, 0, len(urls)+1)
	result = append(result, rootNormalized)
	for _, u := range urls {
		if u != rootNormalized {
			result = append(result, u)
		}
	}
	return result
}
