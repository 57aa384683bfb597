package session

import (
	"log/slog"
	"time"

	"github.com/opsboard/opsboard/internal/platform/clock"
)

// Provider opens Managers for individual client sessions that share one
// Store, such as one Manager per browser cookie.
type Provider struct {
	store  Store
	prefix string
	ttl    time.Duration
	clock  clock.Clock
	logger *slog.Logger
}

// NewProvider constructs a Provider. Keys are prefix + session id.
func NewProvider(store Store, prefix string, ttl time.Duration, clk clock.Clock, logger *slog.Logger) *Provider {
	if prefix == "" {
		prefix = "session:"
	}
	return &Provider{store: store, prefix: prefix, ttl: ttl, clock: clk, logger: logger}
}

// Open returns a Manager for the session id. Callers must Close it.
func (p *Provider) Open(id string) *Manager {
	logger := p.logger
	if logger != nil {
		logger = logger.With(slog.String("session", id))
	}
	return NewManager(p.store, Options{
		Key:    p.prefix + id,
		TTL:    p.ttl,
		Clock:  p.clock,
		Logger: logger,
	})
}

// TTL returns the lifetime granted to new sessions.
func (p *Provider) TTL() time.Duration {
	if p.ttl <= 0 {
		return DefaultTTL
	}
	return p.ttl
}
