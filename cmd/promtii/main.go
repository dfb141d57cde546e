package main

import (
	"strings"

	"github.com/alexei18/PromtII/internal/api"
	promtiiconfig "github.com/alexei18/PromtII/internal/config"
	"github.com/alexei18/PromtII/internal/crawl"
	"github.com/alexei18/PromtII/internal/genai"
	"github.com/alexei18/PromtII/internal/keypool"
	"github.com/alexei18/PromtII/pkg/config"
	"github.com/alexei18/PromtII/pkg/llm"
	"github.com/alexei18/PromtII/pkg/logging"
	"github.com/alexei18/PromtII/pkg/monitoring"
	"github.com/alexei18/PromtII/pkg/server"
)

const version = "1.0.0"

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("promtii")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting PromtII (website analysis and generation API)")

	cfg := promtiiconfig.LoadConfig()

	// Credential pool: the service is useless without at least one key.
	keys := promtiiconfig.LoadAPIKeys(cfg.LLMProvider)
	pool, err := keypool.NewPool(keys,
		keypool.WithMaxTokens(cfg.MaxTokensPerKey),
		keypool.WithResetInterval(cfg.KeyResetInterval),
		keypool.WithCooldown(cfg.RateLimitCooldown),
		keypool.WithLogger(logger),
	)
	if err != nil {
		logger.WithError(err).Fatal("No API keys configured")
	}
	logger.WithField("keys", len(keys)).Info("Credential pool initialized")

	// LLM client
	llmClient, err := llm.NewClient(llm.Config{
		Provider: cfg.LLMProvider,
		Model:    cfg.LLMModel,
		APIURL:   cfg.LLMAPIURL,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create LLM client")
	}
	genService := genai.NewService(llmClient, pool, logger)

	// Crawl pipeline
	allowedHosts := splitHosts(config.GetEnv("SSRF_ALLOWED_HOSTS", ""))
	fetcher := crawl.NewFetcher(allowedHosts, crawl.WithFetchLogger(logger))
	crawler := crawl.NewCrawler(fetcher, logger)
	crawlOpts := crawl.Options{
		MaxDepth:         cfg.MaxCrawlDepth,
		MaxURLs:          cfg.MaxCrawlPages,
		MaxPerDepth:      cfg.MaxPagesPerDepth,
		Concurrency:      cfg.CrawlConcurrency,
		StepTimeout:      cfg.CrawlStepTimeout,
		SitemapThreshold: cfg.SitemapFallback,
	}
	orchestrator := crawl.NewOrchestrator(crawler, fetcher, logger, crawlOpts)

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("promtii", version)
	metricsCollector := monitoring.NewMetricsCollector("promtii", version, config.GetEnv("GIT_COMMIT", "unknown"))

	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"LLM_PROVIDER": cfg.LLMProvider,
		"LLM_MODEL":    cfg.LLMModel,
	}))
	healthChecker.AddCheck("credentials", monitoring.CredentialPoolHealthCheck(pool.Available))

	// HTTP server
	router := server.SetupServiceRouter(logger, "promtii", healthChecker, metricsCollector)

	handler := api.NewHandler(orchestrator, crawler, fetcher, genService, logger, crawlOpts)
	handler.RegisterRoutes(router)

	srvConfig := server.DefaultConfig("promtii", cfg.Port)
	if err := server.Start(srvConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
}

func splitHosts(raw string) []string {
	var hosts []string
	for _, h := range strings.Split(raw, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
