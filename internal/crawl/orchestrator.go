package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alexei18/PromtII/internal/extract"
	"github.com/alexei18/PromtII/pkg/logging"
)

// ErrNoPages means every discovered page failed to fetch or extract, leaving
// nothing to aggregate.
var ErrNoPages = errors.New("no usable page content could be extracted")

const (
	quickScanPageLimit = 5
	extractionWorkers  = 50
)

// Result is the aggregated outcome of a scan.
type Result struct {
	CrawledText string
	PageCount   int
	FailedCount int
	Pages       []extract.PageRecord
}

// Orchestrator runs full scans: discovery, concurrent extraction and
// aggregation into a single text blob for downstream generation.
type Orchestrator struct {
	crawler *Crawler
	fetcher *Fetcher
	logger  logging.Logger
	opts    Options
}

func NewOrchestrator(crawler *Crawler, fetcher *Fetcher, logger logging.Logger, opts Options) *Orchestrator {
	return &Orchestrator{
		crawler: crawler,
		fetcher: fetcher,
		logger:  logger,
		opts:    opts.normalized(),
	}
}

// QuickScan is the fast preview path: it extracts the homepage and up to
// four of the homepage's own internal links, never consulting the sitemap.
// A homepage that cannot be fetched fails the whole scan; the extra pages
// tolerate partial failure.
func (o *Orchestrator) QuickScan(ctx context.Context, rootURL string) (*Result, error) {
	start := time.Now()
	defer func() {
		crawlDuration.WithLabelValues("quick").Observe(time.Since(start).Seconds())
	}()

	root, err := url.Parse(rootURL)
	if err != nil || root.Host == "" || (root.Scheme != "http" && root.Scheme != "https") {
		return nil, fmt.Errorf("invalid root url %q", rootURL)
	}

	home := o.fetcher.FetchAndExtract(ctx, rootURL)
	if home.Failed() {
		return nil, fmt.Errorf("%w: %s", ErrRootFetch, rootURL)
	}

	rootNormalized := normalizeURL(root)
	seen := map[string]bool{rootNormalized: true}
	var extras []string
	for _, link := range home.InternalLinks {
		if len(extras) >= quickScanPageLimit-1 {
			break
		}
		normalized, ok := normalizeCrawlable(link, root.Host)
		if !ok || seen[normalized] {
			continue
		}
		seen[normalized] = true
		extras = append(extras, normalized)
	}

	records := make([]extract.PageRecord, len(extras)+1)
	records[0] = home

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractionWorkers)
	for i, pageURL := range extras {
		i, pageURL := i, pageURL
		g.Go(func() error {
			records[i+1] = o.fetcher.FetchAndExtract(gctx, pageURL)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return o.aggregate(records)
}

// DeepCrawl walks the site to the configured depth and aggregates every
// reachable page.
func (o *Orchestrator) DeepCrawl(ctx context.Context, rootURL string, maxDepth, maxPages int) (*Result, error) {
	start := time.Now()
	defer func() {
		crawlDuration.WithLabelValues("deep").Observe(time.Since(start).Seconds())
	}()

	opts := o.opts
	if maxDepth > 0 {
		opts.MaxDepth = maxDepth
	}
	if maxPages > 0 {
		opts.MaxURLs = maxPages
	}

	urls, err := o.crawler.Discover(ctx, rootURL, opts)
	if err != nil {
		return nil, err
	}
	sortShallowFirst(urls)

	return o.extractAll(ctx, urls)
}

func (o *Orchestrator) extractAll(ctx context.Context, urls []string) (*Result, error) {
	records := make([]extract.PageRecord, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(extractionWorkers)
	for i, pageURL := range urls {
		i, pageURL := i, pageURL
		g.Go(func() error {
			records[i] = o.fetcher.FetchAndExtract(gctx, pageURL)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return o.aggregate(records)
}

// aggregate builds the delimited text blob from extracted records, skipping
// sentinels but counting them as failures.
func (o *Orchestrator) aggregate(records []extract.PageRecord) (*Result, error) {
	result := &Result{Pages: records}
	var blob strings.Builder
	for _, record := range records {
		if record.Failed() {
			result.FailedCount++
			continue
		}
		if blob.Len() > 0 {
			blob.WriteString("\n\n")
		}
		blob.WriteString(formatPage(record))
		result.PageCount++
	}

	if result.PageCount == 0 {
		return nil, ErrNoPages
	}

	result.CrawledText = blob.String()
	if o.logger != nil {
		o.logger.WithFields(logging.Fields{
			"pages":  result.PageCount,
			"failed": result.FailedCount,
			"chars":  len(result.CrawledText),
		}).Info("Crawl aggregation complete")
	}
	return result, nil
}

// formatPage renders one page as a delimited block inside the crawl blob.
func formatPage(record extract.PageRecord) string {
	return fmt.Sprintf("--- START PAGE: %s ---\nTitle: %s\nContent:\n%s\n--- END PAGE ---",
		record.URL, record.Title, record.Content)
}

// sortShallowFirst orders URLs by path depth so the homepage and top-level
// pages are extracted before deep leaves. The sort is stable to preserve
// discovery order within a depth.
func sortShallowFirst(urls []string) {
	sort.SliceStable(urls, func(i, j int) bool {
		return pathSegments(urls[i]) < pathSegments(urls[j])
	})
}

func pathSegments(rawURL string) int {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0
	}
	trimmed := strings.Trim(u.Path, "/")
	if trimmed == "" {
		return 0
	}
	return len(strings.Split(trimmed, "/"))
}
