package crawl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"github.com/alexei18/PromtII/internal/extract"
	"github.com/alexei18/PromtII/pkg/clients"
	"github.com/alexei18/PromtII/pkg/logging"
)

const (
	maxPageBytes      = 10 << 20 // 10 MB
	maxErrorBodyBytes = 1 << 20  // 1 MB

	defaultFetchTimeout = 15 * time.Second

	// Some sites serve bot-looking clients a blank shell, so requests carry
	// ordinary browser headers.
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// Fetcher downloads pages with browser-like headers, bounded bodies and
// retry on transient failures.
type Fetcher struct {
	client       *http.Client
	executor     failsafe.Executor[*http.Response]
	logger       logging.Logger
	allowedHosts []string
	validate     bool
}

type FetcherOption func(*Fetcher)

func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = client }
}

func WithFetchLogger(logger logging.Logger) FetcherOption {
	return func(f *Fetcher) { f.logger = logger }
}

func NewFetcher(allowedHosts []string, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{
		executor:     clients.NewHTTPExecutor(clients.DefaultHTTPExecutorConfig()),
		allowedHosts: allowedHosts,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{
			Timeout:   defaultFetchTimeout,
			Transport: NewSSRFSafeTransport(allowedHosts),
		}
		// Injected clients (tests, trusted internal callers) skip the
		// pre-flight URL check; the default client keeps it as a cheap
		// reject before any connection is dialed.
		f.validate = true
	}
	return f
}

// Fetch downloads a URL without caring about content type. Used for
// sitemaps and robots files as well as pages.
func (f *Fetcher) Fetch(ctx context.Context, target string) ([]byte, int, error) {
	if f.validate {
		if _, err := ValidateCrawlURL(target, f.allowedHosts); err != nil {
			return nil, 0, fmt.Errorf("fetch %s: %w", target, err)
		}
	}
	resp, err := clients.ExecuteHTTP(ctx, f.executor, func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if reqErr != nil {
			return nil, reqErr
		}
		setBrowserHeaders(req)
		return f.client.Do(req)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, resp.StatusCode, fmt.Errorf("fetch %s: unexpected status %s: %s",
			target, resp.Status, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read %s: %w", target, err)
	}
	return data, resp.StatusCode, nil
}

// FetchHTML downloads a page and rejects non-HTML responses.
func (f *Fetcher) FetchHTML(ctx context.Context, target string) ([]byte, error) {
	if f.validate {
		if _, err := ValidateCrawlURL(target, f.allowedHosts); err != nil {
			return nil, fmt.Errorf("fetch page %s: %w", target, err)
		}
	}
	resp, err := clients.ExecuteHTTP(ctx, f.executor, func() (*http.Response, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if reqErr != nil {
			return nil, reqErr
		}
		setBrowserHeaders(req)
		return f.client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch page %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, fmt.Errorf("fetch page %s: unexpected status %s: %s",
			target, resp.Status, strings.TrimSpace(string(body)))
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "text/html") && !strings.Contains(ct, "application/xhtml") {
		return nil, fmt.Errorf("unsupported content type %q for %s", ct, target)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("read page %s: %w", target, err)
	}
	return data, nil
}

// FetchAndExtract downloads a page and extracts its structured content.
// Failures come back as error-sentinel records rather than errors so that
// one broken page never aborts a crawl.
func (f *Fetcher) FetchAndExtract(ctx context.Context, pageURL string) extract.PageRecord {
	data, err := f.FetchHTML(ctx, pageURL)
	if err != nil {
		pagesFetchedTotal.WithLabelValues("fetch_failed").Inc()
		if f.logger != nil {
			f.logger.WithFields(logging.Fields{
				"url":   pageURL,
				"error": err.Error(),
			}).Warn("Page fetch failed")
		}
		return extract.FailedRecord(pageURL, extract.TitleFetchFailed)
	}

	record := extract.Extract(pageURL, data)
	if record.Failed() {
		pagesFetchedTotal.WithLabelValues("extract_failed").Inc()
	} else {
		pagesFetchedTotal.WithLabelValues("ok").Inc()
	}
	return record
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,ro;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
}
