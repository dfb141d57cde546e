package keypool

import (
	"errors"
	"sync"
	"time"

	"github.com/alexei18/PromtII/pkg/logging"
)

// Errors surface in API responses, so the messages match the rest of the
// product's Romanian UI copy.
var (
	ErrNoKeys = errors.New("nu s-au găsit chei API configurate în variabilele de mediu")

	ErrNoCredentials = errors.New("Nu sunt disponibile API keys. Toate cheile sunt suspendate sau și-au atins limita de utilizare.")

	ErrNoAlternate = errors.New("Nu sunt disponibile API keys alternative valide.")
)

// Suspension reasons.
const (
	ReasonInvalid     = "invalid"
	ReasonRateLimited = "rate_limited"
	ReasonSuspended   = "consumer_suspended"
)

type credential struct {
	key           string
	tokensUsed    int64
	active        bool
	suspended     bool
	suspendReason string
	geoRestricted bool
	lastUsed      time.Time
	windowStart   time.Time
}

func (c *credential) eligible(maxTokens int64) bool {
	return c.active && !c.suspended && !c.geoRestricted && c.tokensUsed < maxTokens
}

// Stats is a redacted view of one credential for diagnostics.
type Stats struct {
	MaskedKey     string    `json:"key"`
	TokensUsed    int64     `json:"tokens_used"`
	Active        bool      `json:"active"`
	Suspended     bool      `json:"suspended"`
	SuspendReason string    `json:"suspend_reason,omitempty"`
	GeoRestricted bool      `json:"geo_restricted"`
	LastUsed      time.Time `json:"last_used,omitempty"`
}

// Pool rotates a fixed set of API keys, tracking per-key usage and failure
// state so one bad key never takes the service down.
type Pool struct {
	mu            sync.Mutex
	creds         []*credential
	maxTokens     int64
	resetInterval time.Duration
	cooldown      time.Duration
	clock         func() time.Time
	logger        logging.Logger
}

type Option func(*Pool)

func WithMaxTokens(n int64) Option {
	return func(p *Pool) { p.maxTokens = n }
}

func WithResetInterval(d time.Duration) Option {
	return func(p *Pool) { p.resetInterval = d }
}

func WithCooldown(d time.Duration) Option {
	return func(p *Pool) { p.cooldown = d }
}

func WithLogger(logger logging.Logger) Option {
	return func(p *Pool) { p.logger = logger }
}

func WithClock(clock func() time.Time) Option {
	return func(p *Pool) { p.clock = clock }
}

func NewPool(keys []string, opts ...Option) (*Pool, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}

	p := &Pool{
		maxTokens:     1_000_000,
		resetInterval: 24 * time.Hour,
		cooldown:      time.Hour,
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}

	now := p.clock()
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		p.creds = append(p.creds, &credential{
			key:         key,
			active:      true,
			windowStart: now,
		})
	}
	if len(p.creds) == 0 {
		return nil, ErrNoKeys
	}
	return p, nil
}

// Select returns the eligible key with the least usage, marking it as used.
// Expired quota windows and rate-limit cooldowns are processed first, so a
// pool that looks exhausted can recover on its own.
func (p *Pool) Select() (string, error) {
	return p.selectExcluding("")
}

// SelectExcluding picks the least-used eligible key other than exclude.
// Used when retrying after a transient provider failure: the retry must go
// through a different credential, and a pool with no alternative is a
// terminal condition rather than a second shot at the same key.
func (p *Pool) SelectExcluding(exclude string) (string, error) {
	return p.selectExcluding(exclude)
}

func (p *Pool) selectExcluding(exclude string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	p.applyResets(now)

	var best *credential
	for _, c := range p.creds {
		if c.key == exclude || !c.eligible(p.maxTokens) {
			continue
		}
		if best == nil || c.tokensUsed < best.tokensUsed {
			best = c
		}
	}
	if best == nil {
		if exclude != "" {
			return "", ErrNoAlternate
		}
		return "", ErrNoCredentials
	}

	best.lastUsed = now
	return best.key, nil
}

// RecordUsage adds consumed tokens to a key and deactivates it once the
// quota limit is reached.
func (p *Pool) RecordUsage(key string, tokens int64) {
	if tokens < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.find(key)
	if c == nil {
		return
	}
	c.tokensUsed += tokens
	if c.tokensUsed >= p.maxTokens && c.active {
		c.active = false
		if p.logger != nil {
			p.logger.WithFields(logging.Fields{
				"key":         maskKey(c.key),
				"tokens_used": c.tokensUsed,
			}).Warn("API key reached token limit, deactivating")
		}
	}
}

// MarkSuspended flags a key as unusable for the given reason. Rate-limit
// suspensions clear after the cooldown; others persist until the quota
// window resets or the process restarts.
func (p *Pool) MarkSuspended(key, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.find(key)
	if c == nil {
		return
	}
	c.suspended = true
	c.suspendReason = reason
	c.lastUsed = p.clock()
	if p.logger != nil {
		p.logger.WithFields(logging.Fields{
			"key":    maskKey(c.key),
			"reason": reason,
		}).Warn("API key suspended")
	}
}

// MarkGeoRestricted permanently excludes a key that the provider rejects
// for the deployment's region.
func (p *Pool) MarkGeoRestricted(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.find(key)
	if c == nil {
		return
	}
	c.geoRestricted = true
	if p.logger != nil {
		p.logger.WithField("key", maskKey(c.key)).Warn("API key geo-restricted, excluding from rotation")
	}
}

// Available reports usable and total key counts for health checks.
func (p *Pool) Available() (usable, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.applyResets(p.clock())
	for _, c := range p.creds {
		if c.eligible(p.maxTokens) {
			usable++
		}
	}
	return usable, len(p.creds)
}

// Stats returns a redacted snapshot of every credential.
func (p *Pool) Stats() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.applyResets(p.clock())
	stats := make([]Stats, 0, len(p.creds))
	for _, c := range p.creds {
		stats = append(stats, Stats{
			MaskedKey:     maskKey(c.key),
			TokensUsed:    c.tokensUsed,
			Active:        c.active,
			Suspended:     c.suspended,
			SuspendReason: c.suspendReason,
			GeoRestricted: c.geoRestricted,
			LastUsed:      c.lastUsed,
		})
	}
	return stats
}

// applyResets runs both recovery policies. Callers must hold the lock.
func (p *Pool) applyResets(now time.Time) {
	for _, c := range p.creds {
		// Quota window: usage resets, the key reactivates, and rate-limit
		// suspensions clear. Invalid and consumer-suspended keys stay out.
		if now.Sub(c.windowStart) >= p.resetInterval {
			c.tokensUsed = 0
			c.active = true
			c.windowStart = now
			if c.suspended && c.suspendReason == ReasonRateLimited {
				c.suspended = false
				c.suspendReason = ""
			}
		}

		// Rate-limit cooldown: the provider's limit is per-hour, so the key
		// comes back after an hour of rest.
		if c.suspended && c.suspendReason == ReasonRateLimited && now.Sub(c.lastUsed) >= p.cooldown {
			c.suspended = false
			c.suspendReason = ""
		}
	}
}

func (p *Pool) find(key string) *credential {
	for _, c := range p.creds {
		if c.key == key {
			return c
		}
	}
	return nil
}

// EstimateTokens approximates token usage when the provider response does
// not report it, using the ~4 characters per token heuristic.
func EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	return int64((len(text) + 3) / 4)
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "..." + key
	}
	return "..." + key[len(key)-4:]
}
