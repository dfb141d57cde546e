package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/alexei18/PromtII/internal/crawl"
	"github.com/alexei18/PromtII/internal/extract"
	"github.com/alexei18/PromtII/internal/genai"
	"github.com/alexei18/PromtII/internal/keypool"
	"github.com/alexei18/PromtII/pkg/llm"
	"github.com/alexei18/PromtII/pkg/logging"
)

const (
	maxDepthLimit = 4
	maxPagesLimit = 100
)

type scanner interface {
	QuickScan(ctx context.Context, rootURL string) (*crawl.Result, error)
	DeepCrawl(ctx context.Context, rootURL string, maxDepth, maxPages int) (*crawl.Result, error)
}

type discoverer interface {
	Discover(ctx context.Context, rootURL string, opts crawl.Options) ([]string, error)
}

type extractor interface {
	FetchAndExtract(ctx context.Context, pageURL string) extract.PageRecord
}

type generator interface {
	Generate(ctx context.Context, prompt string, opts genai.Options) (*llm.Completion, error)
	KeyStats() []keypool.Stats
}

// Handler wires the crawl and generation services into HTTP endpoints.
type Handler struct {
	scanner    scanner
	discoverer discoverer
	extractor  extractor
	generator  generator
	logger     logging.Logger
	crawlOpts  crawl.Options
}

func NewHandler(orchestrator *crawl.Orchestrator, crawler *crawl.Crawler, fetcher *crawl.Fetcher, genService *genai.Service, logger logging.Logger, opts crawl.Options) *Handler {
	return &Handler{
		scanner:    orchestrator,
		discoverer: crawler,
		extractor:  fetcher,
		generator:  genService,
		logger:     logger,
		crawlOpts:  opts,
	}
}

// RegisterRoutes mounts the service API under /api/v1.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/scan/quick", h.QuickScan)
		v1.POST("/scan/deep", h.DeepScan)
		v1.POST("/crawl", h.Crawl)
		v1.POST("/extract", h.Extract)
		v1.POST("/generate", h.Generate)
		v1.GET("/credentials", h.Credentials)
	}
}

type scanRequest struct {
	URL      string `json:"url" binding:"required"`
	MaxDepth int    `json:"max_depth"`
	MaxPages int    `json:"max_pages"`
}

type scanResponse struct {
	URL         string               `json:"url"`
	PageCount   int                  `json:"page_count"`
	FailedCount int                  `json:"failed_count"`
	CrawledText string               `json:"crawled_text"`
	Pages       []extract.PageRecord `json:"pages"`
}

func toScanResponse(rootURL string, result *crawl.Result) scanResponse {
	return scanResponse{
		URL:         rootURL,
		PageCount:   result.PageCount,
		FailedCount: result.FailedCount,
		CrawledText: result.CrawledText,
		Pages:       result.Pages,
	}
}

// QuickScan extracts up to five of the shallowest pages of a site.
func (h *Handler) QuickScan(c *gin.Context) {
	req, ok := h.bindScanRequest(c)
	if !ok {
		return
	}

	result, err := h.scanner.QuickScan(c.Request.Context(), req.URL)
	if err != nil {
		h.crawlError(c, req.URL, err)
		return
	}
	c.JSON(http.StatusOK, toScanResponse(req.URL, result))
}

// DeepScan walks the site to the requested depth and aggregates all pages.
func (h *Handler) DeepScan(c *gin.Context) {
	req, ok := h.bindScanRequest(c)
	if !ok {
		return
	}

	result, err := h.scanner.DeepCrawl(c.Request.Context(), req.URL, req.MaxDepth, req.MaxPages)
	if err != nil {
		h.crawlError(c, req.URL, err)
		return
	}
	c.JSON(http.StatusOK, toScanResponse(req.URL, result))
}

// Crawl runs URL discovery only, without extracting page content.
func (h *Handler) Crawl(c *gin.Context) {
	req, ok := h.bindScanRequest(c)
	if !ok {
		return
	}

	opts := h.crawlOpts
	if req.MaxDepth > 0 {
		opts.MaxDepth = req.MaxDepth
	}
	if req.MaxPages > 0 {
		opts.MaxURLs = req.MaxPages
	}

	urls, err := h.discoverer.Discover(c.Request.Context(), req.URL, opts)
	if err != nil {
		h.crawlError(c, req.URL, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": req.URL, "count": len(urls), "urls": urls})
}

type extractRequest struct {
	URL string `json:"url" binding:"required"`
}

// Extract fetches a single page and returns its structured content.
func (h *Handler) Extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return
	}
	if !validPageURL(req.URL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be a valid http(s) URL"})
		return
	}

	record := h.extractor.FetchAndExtract(c.Request.Context(), req.URL)
	if record.Failed() {
		c.JSON(http.StatusBadGateway, gin.H{"error": record.Title, "url": req.URL})
		return
	}
	c.JSON(http.StatusOK, record)
}

type generateRequest struct {
	Prompt      string  `json:"prompt" binding:"required"`
	System      string  `json:"system"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

// Generate runs a completion through the rotating credential pool.
func (h *Handler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompt is required"})
		return
	}

	completion, err := h.generator.Generate(c.Request.Context(), req.Prompt, genai.Options{
		System:      req.System,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		if errors.Is(err, keypool.ErrNoCredentials) || errors.Is(err, keypool.ErrNoKeys) || errors.Is(err, keypool.ErrNoAlternate) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		if h.logger != nil {
			h.logger.WithField("error", err.Error()).Error("Generation failed")
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"content": completion.Content,
		"model":   completion.Model,
		"usage": gin.H{
			"prompt_tokens":     completion.Usage.PromptTokens,
			"completion_tokens": completion.Usage.CompletionTokens,
			"total_tokens":      completion.Usage.TotalTokens,
		},
	})
}

// Credentials returns the redacted key pool snapshot.
func (h *Handler) Credentials(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"credentials": h.generator.KeyStats()})
}

func (h *Handler) bindScanRequest(c *gin.Context) (scanRequest, bool) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url is required"})
		return req, false
	}
	if !validPageURL(req.URL) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be a valid http(s) URL"})
		return req, false
	}
	if req.MaxDepth < 0 || req.MaxDepth > maxDepthLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_depth must be between 1 and 4"})
		return req, false
	}
	if req.MaxPages < 0 || req.MaxPages > maxPagesLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": "max_pages must be between 1 and 100"})
		return req, false
	}
	return req, true
}

func (h *Handler) crawlError(c *gin.Context, rootURL string, err error) {
	if h.logger != nil {
		h.logger.WithFields(logging.Fields{
			"url":   rootURL,
			"error": err.Error(),
		}).Warn("Crawl request failed")
	}
	switch {
	case errors.Is(err, crawl.ErrRootFetch), errors.Is(err, crawl.ErrNoPages):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "url": rootURL})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "crawl timed out", "url": rootURL})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "crawl failed", "url": rootURL})
	}
}

func validPageURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
