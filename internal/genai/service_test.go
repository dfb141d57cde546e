package genai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/alexei18/PromtII/internal/keypool"
	"github.com/alexei18/PromtII/pkg/llm"
)

type fakeClient struct {
	responses map[string]error // key -> error; nil means success
	calls     []string
	content   string
	usage     llm.Usage
}

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	f.calls = append(f.calls, req.APIKey)
	if err, ok := f.responses[req.APIKey]; ok && err != nil {
		return nil, err
	}
	content := f.content
	if content == "" {
		content = "generated text"
	}
	return &llm.Completion{Content: content, Usage: f.usage}, nil
}

func newTestService(t *testing.T, client *fakeClient, keys ...string) (*Service, *keypool.Pool) {
	t.Helper()
	pool, err := keypool.NewPool(keys)
	if err != nil {
		t.Fatalf("new pool: %v", err)
	}
	return NewService(client, pool, nil), pool
}

func TestGenerateSuccessRecordsUsage(t *testing.T) {
	client := &fakeClient{usage: llm.Usage{TotalTokens: 42}}
	svc, pool := newTestService(t, client, "key-aaaa")

	completion, err := svc.Generate(context.Background(), "describe the site", Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if completion.Content != "generated text" {
		t.Fatalf("unexpected content %q", completion.Content)
	}

	stats := pool.Stats()
	if stats[0].TokensUsed != 42 {
		t.Fatalf("expected exact usage recorded, got %d", stats[0].TokensUsed)
	}
}

func TestGenerateEstimatesUsageWhenMissing(t *testing.T) {
	client := &fakeClient{content: strings.Repeat("x", 40)}
	svc, pool := newTestService(t, client, "key-aaaa")

	prompt := strings.Repeat("p", 40)
	if _, err := svc.Generate(context.Background(), prompt, Options{}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	stats := pool.Stats()
	// 40 prompt chars + 40 completion chars at ~4 chars per token.
	if stats[0].TokensUsed != 20 {
		t.Fatalf("expected estimated usage of 20 tokens, got %d", stats[0].TokensUsed)
	}
}

func TestGenerateRetriesWithNextKeyOn429(t *testing.T) {
	client := &fakeClient{responses: map[string]error{
		"key-aaaa": &llm.APIError{StatusCode: http.StatusTooManyRequests, Message: "Rate limit reached"},
	}}
	svc, pool := newTestService(t, client, "key-aaaa", "key-bbbb")

	// key-aaaa is least used so it goes first, gets suspended, and the
	// retry lands on key-bbbb.
	completion, err := svc.Generate(context.Background(), "prompt", Options{})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if completion == nil {
		t.Fatalf("expected completion from retry")
	}
	if len(client.calls) != 2 || client.calls[0] != "key-aaaa" || client.calls[1] != "key-bbbb" {
		t.Fatalf("unexpected call sequence %v", client.calls)
	}

	usable, total := pool.Available()
	if total != 2 || usable != 1 {
		t.Fatalf("expected rate-limited key suspended, got %d/%d", usable, total)
	}
}

func TestGenerateSuspendsInvalidKeyOn401(t *testing.T) {
	client := &fakeClient{responses: map[string]error{
		"key-aaaa": &llm.APIError{StatusCode: http.StatusUnauthorized, Message: "Incorrect API key provided"},
	}}
	svc, pool := newTestService(t, client, "key-aaaa", "key-bbbb")

	if _, err := svc.Generate(context.Background(), "prompt", Options{}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	for _, s := range pool.Stats() {
		if s.MaskedKey == "...aaaa" {
			if !s.Suspended || s.SuspendReason != keypool.ReasonInvalid {
				t.Fatalf("expected invalid suspension, got %+v", s)
			}
		}
	}
}

func TestGenerateGeoRestrictsKey(t *testing.T) {
	client := &fakeClient{responses: map[string]error{
		"key-aaaa": &llm.APIError{StatusCode: http.StatusBadRequest, Message: "User location is not supported for the API use."},
	}}
	svc, pool := newTestService(t, client, "key-aaaa", "key-bbbb")

	if _, err := svc.Generate(context.Background(), "prompt", Options{}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	for _, s := range pool.Stats() {
		if s.MaskedKey == "...aaaa" && !s.GeoRestricted {
			t.Fatalf("expected geo restriction, got %+v", s)
		}
	}
}

func TestGenerateRetryableUsesDifferentKey(t *testing.T) {
	client := &fakeClient{responses: map[string]error{
		"key-aaaa": &llm.APIError{StatusCode: http.StatusServiceUnavailable, Message: "The model is overloaded"},
	}}
	svc, pool := newTestService(t, client, "key-aaaa", "key-bbbb")

	if _, err := svc.Generate(context.Background(), "prompt", Options{}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	// A transient failure must not re-select the key that just failed.
	if len(client.calls) != 2 || client.calls[0] != "key-aaaa" || client.calls[1] != "key-bbbb" {
		t.Fatalf("unexpected call sequence %v", client.calls)
	}

	usable, total := pool.Available()
	if usable != 2 || total != 2 {
		t.Fatalf("retryable failure must not demote any key, got %d/%d", usable, total)
	}
}

func TestGenerateRetryableWithoutAlternateKey(t *testing.T) {
	client := &fakeClient{responses: map[string]error{
		"key-aaaa": &llm.APIError{StatusCode: http.StatusServiceUnavailable, Message: "The model is overloaded"},
	}}
	svc, pool := newTestService(t, client, "key-aaaa")

	_, err := svc.Generate(context.Background(), "prompt", Options{})
	if !errors.Is(err, keypool.ErrNoAlternate) {
		t.Fatalf("expected no-alternate error, got %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("expected a single provider call, got %v", client.calls)
	}

	// The key stays eligible for future requests.
	usable, total := pool.Available()
	if usable != 1 || total != 1 {
		t.Fatalf("retryable failure must not demote the key, got %d/%d", usable, total)
	}
}

func TestGenerateUnknownErrorPropagates(t *testing.T) {
	boom := errors.New("tls handshake failure")
	client := &fakeClient{responses: map[string]error{"key-aaaa": boom}}
	svc, _ := newTestService(t, client, "key-aaaa")

	_, err := svc.Generate(context.Background(), "prompt", Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if len(client.calls) != 1 {
		t.Fatalf("unknown errors must not retry, got %d calls", len(client.calls))
	}
}

func TestGenerateAllKeysExhausted(t *testing.T) {
	client := &fakeClient{responses: map[string]error{
		"key-aaaa": &llm.APIError{StatusCode: http.StatusTooManyRequests, Message: "Rate limit reached"},
		"key-bbbb": &llm.APIError{StatusCode: http.StatusTooManyRequests, Message: "Rate limit reached"},
	}}
	svc, _ := newTestService(t, client, "key-aaaa", "key-bbbb")

	_, err := svc.Generate(context.Background(), "prompt", Options{})
	if err == nil {
		t.Fatalf("expected failure when every key is rate limited")
	}
}

func TestClassifyProviderError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind failureKind
	}{
		{"consumer suspended", &llm.APIError{StatusCode: 403, Message: "CONSUMER_SUSPENDED: billing disabled"}, failureSuspend},
		{"suspended text", &llm.APIError{StatusCode: 400, Message: "This account has been suspended"}, failureSuspend},
		{"geo text", &llm.APIError{StatusCode: 400, Message: "User location is not supported"}, failureGeo},
		{"401", &llm.APIError{StatusCode: 401, Message: "bad key"}, failureSuspend},
		{"429", &llm.APIError{StatusCode: 429, Message: "too many requests"}, failureSuspend},
		{"403", &llm.APIError{StatusCode: 403, Message: "forbidden"}, failureGeo},
		{"500", &llm.APIError{StatusCode: 500, Message: "internal"}, failureRetryable},
		{"overloaded", &llm.APIError{StatusCode: 529, Message: "Overloaded"}, failureRetryable},
		{"plain error", errors.New("dial tcp: timeout"), failureUnknown},
		{"400 unclassified", &llm.APIError{StatusCode: 400, Message: "bad request"}, failureUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyProviderError(tt.err); got.kind != tt.kind {
				t.Fatalf("expected kind %d, got %d", tt.kind, got.kind)
			}
		})
	}
}
