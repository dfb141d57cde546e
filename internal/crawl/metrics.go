package crawl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promtii",
			Name:      "pages_fetched_total",
			Help:      "Total pages fetched during crawls",
		},
		[]string{"result"},
	)

	crawlDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "promtii",
			Name:      "crawl_duration_seconds",
			Help:      "Duration of full crawl runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17m
		},
		[]string{"mode"},
	)

	sitemapResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "promtii",
			Name:      "sitemap_resolutions_total",
			Help:      "Sitemap resolution outcomes",
		},
		[]string{"outcome"},
	)

	discoveredURLsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "promtii",
			Name:      "discovered_urls_total",
			Help:      "Total unique URLs discovered across crawls",
		},
	)
)
