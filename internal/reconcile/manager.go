package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/howitz/howitz/internal/eventsource"
	"github.com/howitz/howitz/internal/metrics"
)

// Manager holds the engines of all live sessions, keyed by an opaque state
// key stored in the user's session.
type Manager struct {
	connector eventsource.Connector
	opts      Options

	mu      sync.RWMutex
	engines map[string]*Engine
}

// NewManager returns a Manager whose engines connect through connector.
func NewManager(connector eventsource.Connector, opts Options) *Manager {
	return &Manager{
		connector: connector,
		opts:      opts.withDefaults(),
		engines:   map[string]*Engine{},
	}
}

// Open connects a new engine for creds and registers it under a fresh key.
func (m *Manager) Open(ctx context.Context, creds eventsource.Credentials) (string, *Engine, error) {
	key := uuid.NewString()
	opts := m.opts
	opts.Logger = m.opts.Logger.With("session", key[:8], "user", creds.Username)

	e := New(m.connector, creds, opts)
	if err := e.Connect(ctx); err != nil {
		return "", nil, err
	}

	m.mu.Lock()
	m.engines[key] = e
	m.mu.Unlock()
	return key, e, nil
}

// Get returns the engine registered under key.
func (m *Manager) Get(key string) (*Engine, bool) {
	if key == "" {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.engines[key]
	return e, ok
}

// Remove closes and unregisters the engine under key. Unknown keys are a no-op.
func (m *Manager) Remove(key string) error {
	m.mu.Lock()
	e, ok := m.engines[key]
	delete(m.engines, key)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return e.Close()
}

// Len returns the number of registered engines.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.engines)
}

// EvictIdle closes every engine unused for longer than idle and returns how
// many were evicted.
func (m *Manager) EvictIdle(idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	now := m.opts.Now()

	m.mu.RLock()
	var stale []string
	for key, e := range m.engines {
		if now.Sub(e.LastUsed()) > idle {
			stale = append(stale, key)
		}
	}
	m.mu.RUnlock()

	evicted := 0
	for _, key := range stale {
		m.mu.Lock()
		e, ok := m.engines[key]
		if ok && now.Sub(e.LastUsed()) > idle {
			delete(m.engines, key)
		} else {
			ok = false
		}
		m.mu.Unlock()
		if !ok {
			continue
		}
		if err := e.Close(); err != nil {
			m.opts.Logger.Warn("closing idle session", "err", err)
		}
		evicted++
	}
	metrics.EvictedSessionsTotal.Add(float64(evicted))
	return evicted
}

// CloseAll closes and unregisters every engine.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	engines := m.engines
	m.engines = map[string]*Engine{}
	m.mu.Unlock()

	var errs []error
	for _, e := range engines {
		errs = append(errs, e.Close())
	}
	return errors.Join(errs...)
}
