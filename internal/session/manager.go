// Package session keeps the authenticated principal for one client session:
// persistence with an absolute expiry, the expiry timer and change
// notification.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opsboard/opsboard/internal/platform/clock"
	"github.com/opsboard/opsboard/internal/principal"
	"github.com/opsboard/opsboard/internal/roles"
)

// DefaultTTL is the session lifetime granted on every login or session write.
const DefaultTTL = 30 * time.Minute

// DefaultKey is the storage key used when Options.Key is empty.
const DefaultKey = "session"

// Expired describes a session that ran out.
type Expired struct {
	PrincipalID int64
	ExpiresAt   time.Time
}

// Options configures a Manager.
type Options struct {
	Key    string
	TTL    time.Duration
	Clock  clock.Clock
	Logger *slog.Logger
}

// Manager owns one session slot. It is safe for concurrent use.
type Manager struct {
	store  Store
	key    string
	ttl    time.Duration
	clock  clock.Clock
	logger *slog.Logger
	outbox *Outbox

	changes Emitter[*principal.Principal]
	expired Emitter[Expired]

	mu         sync.Mutex
	current    *principal.Principal
	expiresAt  time.Time
	timer      *clock.Timer
	generation uint64
}

// NewManager constructs a Manager over store.
func NewManager(store Store, opts Options) *Manager {
	if opts.Key == "" {
		opts.Key = DefaultKey
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{
		store:  store,
		key:    opts.Key,
		ttl:    opts.TTL,
		clock:  opts.Clock,
		logger: opts.Logger,
		outbox: NewOutbox(opts.Logger),
	}
}

// Key returns the storage key of this session.
func (m *Manager) Key() string {
	return m.key
}

// SetSession replaces the session. A non-nil principal starts a fresh TTL; nil
// signs out. Subscribers are notified after the state change, on the calling
// goroutine. A persistence failure is returned but the in-memory state still
// changes.
func (m *Manager) SetSession(ctx context.Context, p *principal.Principal) error {
	m.mu.Lock()
	var err error
	var notify *principal.Principal
	if p == nil {
		err = m.clearLocked(ctx)
	} else {
		stored := p.Clone()
		expiresAt := m.clock.Now().Add(m.ttl)
		m.adoptLocked(stored, expiresAt, m.ttl)
		err = m.persistLocked(ctx, stored, expiresAt)
		notify = stored.Clone()
	}
	m.mu.Unlock()

	m.changes.Emit(notify)
	return err
}

// SignOut is SetSession(ctx, nil).
func (m *Manager) SignOut(ctx context.Context) error {
	return m.SetSession(ctx, nil)
}

// GetSession returns the current principal or nil. An in-memory principal is
// returned without re-checking expiry; otherwise the record is restored from
// the store. Storage failures are logged and read as signed out.
//
// The store read runs without the lock. A write or expiry that lands while it
// is in flight wins over the record read.
func (m *Manager) GetSession(ctx context.Context) *principal.Principal {
	m.mu.Lock()
	if m.current != nil {
		p := m.current.Clone()
		m.mu.Unlock()
		return p
	}
	gen := m.generation
	m.mu.Unlock()

	data, err := m.store.Load(ctx, m.key)
	if err != nil {
		if !errors.Is(err, ErrNoRecord) {
			m.logger.Warn("session restore failed", slog.String("key", m.key), slog.Any("error", err))
		}
		return m.snapshot()
	}
	rec, decodeErr := decodeRecord(data)

	m.mu.Lock()
	if m.generation != gen || m.current != nil {
		p := m.current.Clone()
		m.mu.Unlock()
		return p
	}

	if decodeErr != nil {
		m.logger.Warn("session record discarded", slog.String("key", m.key), slog.Any("error", decodeErr))
		if delErr := m.store.Delete(ctx, m.key); delErr != nil {
			m.logger.Warn("session delete failed", slog.String("key", m.key), slog.Any("error", delErr))
		}
		m.mu.Unlock()
		return nil
	}

	now := m.clock.Now()
	switch {
	case rec.legacy:
		expiresAt := now.Add(m.ttl)
		m.adoptLocked(rec.principal, expiresAt, m.ttl)
		if err := m.persistLocked(ctx, rec.principal, expiresAt); err != nil {
			m.logger.Warn("session restamp failed", slog.String("key", m.key), slog.Any("error", err))
		}
	case !rec.expiresAt.After(now):
		if err := m.clearLocked(ctx); err != nil {
			m.logger.Warn("session delete failed", slog.String("key", m.key), slog.Any("error", err))
		}
		m.mu.Unlock()
		m.expired.Emit(Expired{PrincipalID: rec.principal.ID, ExpiresAt: rec.expiresAt})
		// Subscribers may call back into GetSession, so they hear about the
		// expiry only after this call has returned.
		m.outbox.Post(func() { m.changes.Emit(nil) })
		return nil
	default:
		m.adoptLocked(rec.principal, rec.expiresAt, rec.expiresAt.Sub(now))
	}
	p := m.current.Clone()
	m.mu.Unlock()
	return p
}

func (m *Manager) snapshot() *principal.Principal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current.Clone()
}

// ExpiresAt returns the expiry of the in-memory session.
func (m *Manager) ExpiresAt() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return time.Time{}, false
	}
	return m.expiresAt, true
}

// Subscribe registers fn for every session change. fn receives a copy of the
// new principal, or nil after sign-out or expiry.
func (m *Manager) Subscribe(fn func(*principal.Principal)) *Subscription {
	return m.changes.Subscribe(fn)
}

// OnExpired registers fn for expiry events, whether detected by the timer or
// on restore.
func (m *Manager) OnExpired(fn func(Expired)) *Subscription {
	return m.expired.Subscribe(fn)
}

// Flush waits for deferred notifications to be delivered.
func (m *Manager) Flush() {
	m.outbox.Flush()
}

// Close cancels the expiry timer and stops deferred delivery. The persisted
// record is left untouched.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopTimerLocked()
	m.mu.Unlock()
	m.outbox.Close()
}

// Role returns the principal's role, None when signed out.
func (m *Manager) Role(ctx context.Context) roles.Role {
	if p := m.GetSession(ctx); p != nil {
		return p.Role
	}
	return roles.None
}

// HasRole reports whether the current principal holds role.
func (m *Manager) HasRole(ctx context.Context, role roles.Role) bool {
	return role != roles.None && m.Role(ctx) == role
}

func (m *Manager) IsDirector(ctx context.Context) bool    { return m.HasRole(ctx, roles.Director) }
func (m *Manager) IsSubdirector(ctx context.Context) bool { return m.HasRole(ctx, roles.Subdirector) }
func (m *Manager) IsAdmin(ctx context.Context) bool       { return m.HasRole(ctx, roles.Admin) }
func (m *Manager) IsCapturista(ctx context.Context) bool  { return m.HasRole(ctx, roles.Capturista) }

// Permissions returns the capability flags, all false when signed out.
func (m *Manager) Permissions(ctx context.Context) principal.Permissions {
	if p := m.GetSession(ctx); p != nil {
		return p.Permissions
	}
	return principal.Permissions{}
}

func (m *Manager) adoptLocked(p *principal.Principal, expiresAt time.Time, delay time.Duration) {
	m.current = p
	m.expiresAt = expiresAt
	m.armLocked(delay)
}

func (m *Manager) clearLocked(ctx context.Context) error {
	m.stopTimerLocked()
	m.current = nil
	m.expiresAt = time.Time{}
	return m.store.Delete(ctx, m.key)
}

func (m *Manager) persistLocked(ctx context.Context, p *principal.Principal, expiresAt time.Time) error {
	data, err := encodeRecord(p, expiresAt)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	return m.store.Save(ctx, m.key, data, m.ttl)
}

// armLocked replaces any pending expiry callback.
func (m *Manager) armLocked(delay time.Duration) {
	m.stopTimerLocked()
	if delay < 0 {
		delay = 0
	}
	gen := m.generation
	m.timer = m.clock.AfterFunc(delay, func() { m.expire(gen) })
}

// stopTimerLocked cancels the pending callback and invalidates one that may
// already be running.
func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.generation++
}

func (m *Manager) expire(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.current == nil {
		m.mu.Unlock()
		return
	}
	ev := Expired{PrincipalID: m.current.ID, ExpiresAt: m.expiresAt}
	m.timer = nil
	err := m.clearLocked(context.Background())
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn("session delete failed", slog.String("key", m.key), slog.Any("error", err))
	}
	m.logger.Info("session expired", slog.String("key", m.key), slog.Int64("principal_id", ev.PrincipalID))
	m.expired.Emit(ev)
	m.changes.Emit(nil)
}
