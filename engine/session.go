package engine

import (
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/use-agent/harvest/config"
)

// Identity is one browsing actor: a header set, cookies, and a request
// budget. It is owned by exactly one SessionPool and never shared across
// concurrent harvests.
type Identity struct {
	ID        string
	Headers   map[string]string
	Cookies   []http.Cookie
	CreatedAt time.Time

	mu           sync.Mutex
	requestCount int
}

// Consume spends one unit of the identity's request budget and returns
// the new count. Both fetch transports call this once per attempt.
func (id *Identity) Consume() int {
	id.mu.Lock()
	defer id.mu.Unlock()
	id.requestCount++
	return id.requestCount
}

// RequestCount returns the number of requests issued on this identity.
func (id *Identity) RequestCount() int {
	id.mu.Lock()
	defer id.mu.Unlock()
	return id.requestCount
}

// StoreCookie records a cookie handed out by the target site, replacing
// any stored cookie of the same name. Sites re-issue their session cookie
// on every response; appending blindly would send stale duplicates.
func (id *Identity) StoreCookie(c http.Cookie) {
	for i := range id.Cookies {
		if id.Cookies[i].Name == c.Name {
			id.Cookies[i] = c
			return
		}
	}
	id.Cookies = append(id.Cookies, c)
}

// SessionPool owns the active identity for one harvest and mints a fresh
// one when the budget is spent or a block forces a rotation.
type SessionPool struct {
	cfg config.SessionConfig
	rng *rand.Rand

	mu        sync.Mutex
	current   *Identity
	rotations int
	onRetire  func(identityID string)
}

// NewSessionPool creates a pool with one fresh identity. The rng drives
// header randomization; pass a seeded source for deterministic tests.
func NewSessionPool(cfg config.SessionConfig, rng *rand.Rand) *SessionPool {
	if cfg.MaxRequestsPerSession <= 0 {
		cfg.MaxRequestsPerSession = 20
	}
	if len(cfg.UserAgents) == 0 {
		cfg.UserAgents = config.DefaultUserAgents
	}
	if len(cfg.AcceptLanguages) == 0 {
		cfg.AcceptLanguages = config.DefaultAcceptLanguages
	}
	p := &SessionPool{cfg: cfg, rng: rng}
	p.current = p.mint()
	return p
}

// OnRetire registers a callback invoked with the retired identity's ID on
// every rotation. The rate limiter uses this to drop per-identity state.
func (p *SessionPool) OnRetire(fn func(identityID string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRetire = fn
}

// Current returns the active identity, rotating first if its budget is
// exhausted.
func (p *SessionPool) Current() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current.RequestCount() >= p.cfg.MaxRequestsPerSession {
		slog.Debug("session budget exhausted, rotating identity",
			"identity", p.current.ID,
			"requests", p.current.RequestCount(),
		)
		p.rotateLocked()
	}
	return p.current
}

// Rotate retires the active identity and returns a fresh one. Rotation is
// mandatory after any block verdict, not only on budget exhaustion.
func (p *SessionPool) Rotate() *Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rotateLocked()
	return p.current
}

// Rotations returns how many identities have been retired so far.
func (p *SessionPool) Rotations() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotations
}

func (p *SessionPool) rotateLocked() {
	retired := p.current
	p.current = p.mint()
	p.rotations++
	if p.onRetire != nil {
		p.onRetire(retired.ID)
	}
	slog.Info("identity rotated",
		"retired", retired.ID,
		"active", p.current.ID,
		"rotations", p.rotations,
	)
}

// mint builds a fresh identity with randomized browser-like headers.
func (p *SessionPool) mint() *Identity {
	ua := p.cfg.UserAgents[p.rng.Intn(len(p.cfg.UserAgents))]
	lang := p.cfg.AcceptLanguages[p.rng.Intn(len(p.cfg.AcceptLanguages))]
	return &Identity{
		ID: uuid.NewString(),
		Headers: map[string]string{
			"User-Agent":      ua,
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language": lang,
			"Connection":      "keep-alive",
		},
		CreatedAt: time.Now(),
	}
}
