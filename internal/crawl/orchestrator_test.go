package crawl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestOrchestrator(server *httptest.Server) *Orchestrator {
	fetcher := newTestFetcher(server)
	return NewOrchestrator(NewCrawler(fetcher, nil), fetcher, nil, DefaultOptions())
}

func contentPage(title, text string, links ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><main><p>%s</p>", title, text)
	for _, link := range links {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, link)
	}
	b.WriteString("</main></body></html>")
	return b.String()
}

func TestQuickScanLimitsPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			http.NotFound(w, r)
		case "", "/":
			links := make([]string, 10)
			for i := range links {
				links[i] = fmt.Sprintf("/sub/page-%d", i)
			}
			fmt.Fprint(w, contentPage("Home", "Welcome to our studio.", links...))
		default:
			fmt.Fprint(w, contentPage("Sub", "Subpage text."))
		}
	}))
	defer server.Close()

	o := newTestOrchestrator(server)
	result, err := o.QuickScan(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("quick scan: %v", err)
	}

	if result.PageCount > 5 {
		t.Fatalf("quick scan fetched %d pages, expected at most 5", result.PageCount)
	}
	if markers := strings.Count(result.CrawledText, "--- START PAGE:"); markers != result.PageCount {
		t.Fatalf("expected %d page blocks, found %d", result.PageCount, markers)
	}
	// Shallow pages come first, so the homepage must lead the blob.
	if !strings.Contains(strings.SplitN(result.CrawledText, "--- END PAGE ---", 2)[0], "Welcome to our studio.") {
		t.Fatalf("expected homepage first in blob:\n%s", result.CrawledText)
	}
}

func TestDeepCrawlAggregatesPages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			http.NotFound(w, r)
		case "", "/":
			fmt.Fprint(w, contentPage("Home", "Homepage text.", "/despre", "/broken"))
		case "/despre":
			fmt.Fprint(w, contentPage("Despre", "Despre noi text."))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	o := newTestOrchestrator(server)
	result, err := o.DeepCrawl(context.Background(), server.URL, 2, 30)
	if err != nil {
		t.Fatalf("deep crawl: %v", err)
	}

	if result.PageCount != 2 {
		t.Fatalf("expected 2 extracted pages, got %d", result.PageCount)
	}
	if result.FailedCount != 1 {
		t.Fatalf("expected 1 failed page, got %d", result.FailedCount)
	}
	if !strings.Contains(result.CrawledText, "Title: Home") || !strings.Contains(result.CrawledText, "Despre noi text.") {
		t.Fatalf("blob missing page content:\n%s", result.CrawledText)
	}
	if strings.Contains(result.CrawledText, "/broken") {
		t.Fatalf("failed page leaked into blob:\n%s", result.CrawledText)
	}
}

func TestDeepCrawlPageBlockFormat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			http.NotFound(w, r)
		case "", "/":
			fmt.Fprint(w, contentPage("Acme", "About acme."))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	o := newTestOrchestrator(server)
	result, err := o.DeepCrawl(context.Background(), server.URL, 1, 5)
	if err != nil {
		t.Fatalf("deep crawl: %v", err)
	}

	base := strings.TrimSuffix(server.URL, "/")
	want := fmt.Sprintf("--- START PAGE: %s ---\nTitle: Acme\nContent:\nAbout acme.\n--- END PAGE ---", base)
	if result.CrawledText != want {
		t.Fatalf("unexpected blob:\n%q\nwant:\n%q", result.CrawledText, want)
	}
}

func TestQuickScanIgnoresSitemap(t *testing.T) {
	var sitemapHits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			sitemapHits++
			fmt.Fprint(w, "<urlset>")
			for i := 1; i <= 6; i++ {
				fmt.Fprintf(w, "<url><loc>http://%s/listed-%d</loc></url>", r.Host, i)
			}
			fmt.Fprint(w, "</urlset>")
		case "", "/":
			fmt.Fprint(w, contentPage("Home", "Homepage text.", "/a", "/b"))
		case "/a", "/b":
			fmt.Fprint(w, contentPage("Sub", "Linked page text."))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	o := newTestOrchestrator(server)
	result, err := o.QuickScan(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("quick scan: %v", err)
	}

	// The quick path follows the homepage's own links, never the sitemap.
	if sitemapHits != 0 {
		t.Fatalf("quick scan fetched the sitemap %d times", sitemapHits)
	}
	if result.PageCount != 3 {
		t.Fatalf("expected homepage plus two linked pages, got %d", result.PageCount)
	}
	if strings.Contains(result.CrawledText, "/listed-") {
		t.Fatalf("sitemap url leaked into quick scan:\n%s", result.CrawledText)
	}
}

func TestQuickScanFailsOnHomepageError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer server.Close()

	o := newTestOrchestrator(server)
	_, err := o.QuickScan(context.Background(), server.URL)
	if !errors.Is(err, ErrRootFetch) {
		t.Fatalf("expected ErrRootFetch, got %v", err)
	}
}

func TestScanFailsWhenNothingExtractable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/sitemap.xml" {
			fmt.Fprint(w, "<urlset>")
			for i := 1; i <= 6; i++ {
				fmt.Fprintf(w, "<url><loc>http://%s/gone-%d</loc></url>", r.Host, i)
			}
			fmt.Fprint(w, "</urlset>")
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	o := newTestOrchestrator(server)
	_, err := o.DeepCrawl(context.Background(), server.URL, 2, 30)
	if !errors.Is(err, ErrNoPages) {
		t.Fatalf("expected ErrNoPages, got %v", err)
	}
}

func TestSortShallowFirst(t *testing.T) {
	urls := []string{
		"https://example.com/a/b/c",
		"https://example.com/a",
		"https://example.com",
		"https://example.com/a/b",
	}
	sortShallowFirst(urls)

	want := []string{
		"https://example.com",
		"https://example.com/a",
		"https://example.com/a/b",
		"https://example.com/a/b/c",
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Fatalf("position %d: got %q, want %q", i, urls[i], want[i])
		}
	}
}
