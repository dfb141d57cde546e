package genai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alexei18/PromtII/internal/keypool"
	"github.com/alexei18/PromtII/pkg/llm"
	"github.com/alexei18/PromtII/pkg/logging"
)

// Options tune a single generation call.
type Options struct {
	System      string
	Temperature float64
	MaxTokens   int
}

// Service routes generation calls through the credential pool. A classified
// provider failure demotes the key that caused it and the call is retried
// once with the next credential; anything else propagates to the caller.
type Service struct {
	client llm.Client
	pool   *keypool.Pool
	logger logging.Logger
}

func NewService(client llm.Client, pool *keypool.Pool, logger logging.Logger) *Service {
	return &Service{client: client, pool: pool, logger: logger}
}

func (s *Service) Generate(ctx context.Context, prompt string, opts Options) (*llm.Completion, error) {
	start := time.Now()
	defer func() {
		generationDuration.Observe(time.Since(start).Seconds())
	}()

	completion, key, err := s.attempt(ctx, prompt, opts, "")
	if err == nil {
		generationRequestsTotal.WithLabelValues("ok").Inc()
		return completion, nil
	}

	class := classifyProviderError(err)
	if class.kind == failureUnknown {
		generationRequestsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	// One retry, always on a different credential. Demotion removed
	// suspended keys from rotation; excluding the failed key covers the
	// retryable case where it stays eligible.
	if s.logger != nil {
		s.logger.WithFields(logging.Fields{
			"error": err.Error(),
		}).Warn("Generation failed, retrying with next credential")
	}

	completion, _, retryErr := s.attempt(ctx, prompt, opts, key)
	if retryErr != nil {
		generationRequestsTotal.WithLabelValues("error").Inc()
		if errors.Is(retryErr, keypool.ErrNoAlternate) {
			return nil, retryErr
		}
		return nil, fmt.Errorf("generation failed after credential rotation: %w", retryErr)
	}
	generationRequestsTotal.WithLabelValues("retried_ok").Inc()
	return completion, nil
}

// attempt runs one generation call against the least-used eligible key,
// skipping exclude when set, and settles the key's fate based on the
// outcome. It returns the key it used so a retry can avoid it.
func (s *Service) attempt(ctx context.Context, prompt string, opts Options, exclude string) (*llm.Completion, string, error) {
	var key string
	var err error
	if exclude == "" {
		key, err = s.pool.Select()
	} else {
		key, err = s.pool.SelectExcluding(exclude)
	}
	if err != nil {
		return nil, "", err
	}

	completion, err := s.client.Complete(ctx, llm.Request{
		APIKey:      key,
		Prompt:      prompt,
		System:      opts.System,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		s.settleFailure(key, err)
		return nil, key, err
	}

	tokens := int64(completion.Usage.TotalTokens)
	if tokens <= 0 {
		tokens = keypool.EstimateTokens(prompt) + keypool.EstimateTokens(completion.Content)
	}
	s.pool.RecordUsage(key, tokens)
	generationTokensTotal.Add(float64(tokens))

	return completion, key, nil
}

func (s *Service) settleFailure(key string, err error) {
	class := classifyProviderError(err)
	switch class.kind {
	case failureSuspend:
		s.pool.MarkSuspended(key, class.reason)
		keyDemotionsTotal.WithLabelValues(class.reason).Inc()
	case failureGeo:
		s.pool.MarkGeoRestricted(key)
		keyDemotionsTotal.WithLabelValues("geo_restricted").Inc()
	}
	// Retryable and unknown failures leave the key in rotation.
}

// KeyStats exposes the redacted credential snapshot for diagnostics.
func (s *Service) KeyStats() []keypool.Stats {
	return s.pool.Stats()
}
