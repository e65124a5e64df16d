package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"autoelite.com/storefront/internal/metrics"
)

const (
	DefaultSessionIdleTTL = 30 * time.Minute
	DefaultMaxSessions    = 10000
)

type SessionManagerConfig struct {
	Store     ConversationStore
	Assistant AssistantInvoker
	Vehicles  VehicleLookup
	Metrics   *metrics.Metrics
	Logger    zerolog.Logger

	// IdleTTL closes sessions nobody touched for this long.
	IdleTTL time.Duration
	// MaxSessions caps open widgets; the least recently used idle one is
	// closed to make room.
	MaxSessions int
}

// SessionManager owns the chat widgets opened through the HTTP API. Sessions
// share nothing but the store and the assistant.
type SessionManager struct {
	store       ConversationStore
	assistant   AssistantInvoker
	vehicles    VehicleLookup
	metrics     *metrics.Metrics
	log         zerolog.Logger
	idleTTL     time.Duration
	maxSessions int
	now         func() time.Time

	mu       sync.RWMutex
	sessions map[string]*managedSession
}

type managedSession struct {
	session  *Session
	lastSeen time.Time
}

func NewSessionManager(cfg SessionManagerConfig) *SessionManager {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultSessionIdleTTL
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	return &SessionManager{
		store:       cfg.Store,
		assistant:   cfg.Assistant,
		vehicles:    cfg.Vehicles,
		metrics:     cfg.Metrics,
		log:         cfg.Logger,
		idleTTL:     cfg.IdleTTL,
		maxSessions: cfg.MaxSessions,
		now:         time.Now,
		sessions:    make(map[string]*managedSession),
	}
}

// Open starts a widget for a vehicle that must exist.
func (m *SessionManager) Open(ctx context.Context, vehicleID string) (*Session, error) {
	v, err := m.vehicles.GetVehicle(ctx, vehicleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load vehicle: %w", err)
	}
	if v == nil {
		return nil, ErrVehicleNotFound
	}

	s := NewSession(SessionConfig{
		VehicleID:   v.ID,
		VehicleName: v.DisplayName(),
		Store:       m.store,
		Assistant:   m.assistant,
		Metrics:     m.metrics,
		Logger:      m.log,
	})

	m.mu.Lock()
	var evicted *Session
	if len(m.sessions) >= m.maxSessions {
		evicted = m.evictOldestLocked()
	}
	m.sessions[s.ID()] = &managedSession{session: s, lastSeen: m.now()}
	n := len(m.sessions)
	m.mu.Unlock()

	if evicted != nil {
		evicted.Close()
		m.log.Info().Str("session_id", evicted.ID()).Int("max_sessions", m.maxSessions).Msg("chat session evicted to make room")
	}
	m.setGauge(n)
	return s, nil
}

// evictOldestLocked drops the least recently used session that is not
// waiting on the assistant. m.mu must be held.
func (m *SessionManager) evictOldestLocked() *Session {
	var oldestID string
	var oldest time.Time
	for id, e := range m.sessions {
		if e.session.Busy() {
			continue
		}
		if oldestID == "" || e.lastSeen.Before(oldest) {
			oldestID, oldest = id, e.lastSeen
		}
	}
	if oldestID == "" {
		return nil
	}
	s := m.sessions[oldestID].session
	delete(m.sessions, oldestID)
	return s
}

// Get returns an open session and marks it as used.
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = m.now()
	return e.session, nil
}

// Close ends a session and forgets it. A send still in flight finishes
// against the store but its reply is discarded.
func (m *SessionManager) Close(id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	e.session.Close()
	m.setGauge(n)
	return nil
}

// EvictIdle closes every session idle for longer than the TTL and returns
// how many were removed. Sessions with a send in flight are kept.
func (m *SessionManager) EvictIdle() int {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	var idle []*Session
	for id, e := range m.sessions {
		if e.lastSeen.After(cutoff) || e.session.Busy() {
			continue
		}
		idle = append(idle, e.session)
		delete(m.sessions, id)
	}
	n := len(m.sessions)
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		m.log.Debug().Int("evicted", len(idle)).Int("open", n).Msg("idle chat sessions closed")
		m.setGauge(n)
	}
	return len(idle)
}

// Run sweeps idle sessions until ctx is done.
func (m *SessionManager) Run(ctx context.Context) {
	interval := m.idleTTL / 2
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.EvictIdle()
		}
	}
}

// CloseAll is used on shutdown.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*managedSession)
	m.mu.Unlock()

	for _, e := range sessions {
		e.session.Close()
	}
	m.setGauge(0)
}

func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *SessionManager) setGauge(n int) {
	if m.metrics != nil {
		m.metrics.ActiveSessions.Set(float64(n))
	}
}
