package config

import (
	"strings"
	"time"

	"github.com/alexei18/PromtII/pkg/config"
)

// Config stores environment configuration for the service.
type Config struct {
	Port string

	LLMProvider  string
	LLMModel     string
	LLMAPIURL    string
	LLMMaxTokens int

	// Credential pool settings
	MaxTokensPerKey   int64
	KeyResetInterval  time.Duration
	RateLimitCooldown time.Duration

	// Crawl settings
	MaxCrawlDepth     int
	MaxCrawlPages     int
	MaxPagesPerDepth  int
	QuickScanPages    int
	CrawlConcurrency  int
	ExtractionWorkers int
	FetchTimeout      time.Duration
	CrawlStepTimeout  time.Duration
	MaxContentChars   int
	SitemapFallback   int
}

// LoadConfig loads the service configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port: config.GetEnv("PORT", "18032"),

		LLMProvider:  config.GetEnv("LLM_PROVIDER", "gemini"),
		LLMModel:     config.GetEnv("LLM_MODEL", "gemini-2.0-flash"),
		LLMAPIURL:    config.GetEnv("LLM_API_URL", ""),
		LLMMaxTokens: config.GetEnvInt("LLM_MAX_TOKENS", 4096),

		MaxTokensPerKey:   int64(config.GetEnvInt("MAX_TOKENS_PER_KEY", 1_000_000)),
		KeyResetInterval:  config.GetEnvDuration("KEY_RESET_INTERVAL", 24*time.Hour),
		RateLimitCooldown: config.GetEnvDuration("RATE_LIMIT_COOLDOWN", time.Hour),

		MaxCrawlDepth:     config.GetEnvInt("MAX_CRAWL_DEPTH", 2),
		MaxCrawlPages:     config.GetEnvInt("MAX_CRAWL_PAGES", 30),
		MaxPagesPerDepth:  config.GetEnvInt("MAX_PAGES_PER_DEPTH", 200),
		QuickScanPages:    config.GetEnvInt("QUICK_SCAN_PAGES", 5),
		CrawlConcurrency:  config.GetEnvInt("CRAWL_CONCURRENCY", 10),
		ExtractionWorkers: config.GetEnvInt("EXTRACTION_WORKERS", 50),
		FetchTimeout:      config.GetEnvDuration("FETCH_TIMEOUT", 15*time.Second),
		CrawlStepTimeout:  config.GetEnvDuration("CRAWL_STEP_TIMEOUT", 20*time.Second),
		MaxContentChars:   config.GetEnvInt("MAX_CONTENT_CHARS", 15000),
		SitemapFallback:   config.GetEnvInt("SITEMAP_FALLBACK_THRESHOLD", 5),
	}
}

// LoadAPIKeys reads the numbered API key slots for the configured provider,
// e.g. GEMINI_API_KEY_1..N plus the bare GEMINI_API_KEY.
func LoadAPIKeys(provider string) []string {
	prefix := keyEnvPrefix(provider)
	return config.GetNumberedEnv(prefix, 20)
}

func keyEnvPrefix(provider string) string {
	switch strings.ToLower(provider) {
	case "openai":
		return "OPENAI_API_KEY"
	case "gemini", "googleai":
		return "GEMINI_API_KEY"
	default:
		return strings.ToUpper(provider) + "_API_KEY"
	}
}
