package session

import (
	"context"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"go.uber.org/zap"

	"memorymap-backend/application/ports"
	"memorymap-backend/application/services"
	"memorymap-backend/domain/core/entities"
	pkgerrors "memorymap-backend/pkg/errors"
	"memorymap-backend/pkg/observability"
)

// Presence reports how many live connections a user has. The websocket
// hub implements it.
type Presence interface {
	ConnectionCount(userID string) int
}

// SurfaceFactory returns the render surface markers are drawn on for a user.
type SurfaceFactory func(userID string) ports.RenderSurface

// Config controls session lifetime.
type Config struct {
	IdleTimeout  time.Duration
	ReapInterval time.Duration
	Store        services.MemoryStoreConfig
	Location     *time.Location
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:  10 * time.Minute,
		ReapInterval: time.Minute,
		Store:        services.DefaultMemoryStoreConfig(),
		Location:     time.UTC,
	}
}

// Dependencies are the collaborators shared by every session.
type Dependencies struct {
	Remote        ports.RemoteCollection
	Resolver      services.AddressResolver
	Anniversaries *services.AnniversaryService
	Surfaces      SurfaceFactory
	Publisher     Publisher
	Presence      Presence
	Clock         clock.Clock
	Logger        *zap.Logger
	Metrics       *observability.Metrics
}

// Manager opens sessions lazily and closes them on logout, after an idle
// period without connections, or on shutdown.
type Manager struct {
	deps   Dependencies
	config Config
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(deps Dependencies, config Config) *Manager {
	defaults := DefaultConfig()
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = defaults.IdleTimeout
	}
	if config.ReapInterval <= 0 {
		config.ReapInterval = defaults.ReapInterval
	}
	if config.Location == nil {
		config.Location = defaults.Location
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		deps:     deps,
		config:   config,
		logger:   deps.Logger.With(zap.String("component", "session_manager")),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
}

// Open returns userID's session, creating and subscribing it on first use.
func (m *Manager) Open(userID string) (*Session, error) {
	if userID == "" {
		return nil, pkgerrors.NewUnauthorizedError("user identity is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ctx.Err(); err != nil {
		return nil, pkgerrors.NewUnavailableError("sessions")
	}
	if s, ok := m.sessions[userID]; ok {
		s.touch(m.deps.Clock.Now())
		return s, nil
	}

	s, err := m.start(userID)
	if err != nil {
		return nil, err
	}
	m.sessions[userID] = s
	m.deps.Metrics.SessionOpened()
	m.logger.Info("Session opened", zap.String("userID", userID))
	return s, nil
}

func (m *Manager) start(userID string) (*Session, error) {
	logger := m.deps.Logger.With(zap.String("userID", userID))
	ctx, cancel := context.WithCancel(m.ctx)

	s := &Session{
		userID:        userID,
		store:         services.NewMemoryStore(m.deps.Remote, m.deps.Clock, m.config.Store, logger, m.deps.Metrics),
		mapSync:       services.NewMapSync(m.deps.Surfaces(userID), logger, m.deps.Metrics),
		draft:         services.NewDraftController(userID, m.deps.Remote, m.deps.Resolver, m.deps.Clock, m.config.Location, logger, m.deps.Metrics),
		anniversaries: m.deps.Anniversaries,
		publisher:     m.deps.Publisher,
		logger:        logger.With(zap.String("component", "session")),
		cancel:        cancel,
		done:          make(chan struct{}),
		lastSeen:      m.deps.Clock.Now(),
	}
	if m.deps.Publisher != nil {
		publisher := m.deps.Publisher
		s.draft.OnChange(func(d entities.Draft) {
			publisher.PublishDraft(userID, d)
		})
	}

	stream, err := s.store.Subscribe(ctx, userID)
	if err != nil {
		cancel()
		s.draft.Close()
		return nil, err
	}
	go s.pump(ctx, stream)
	return s, nil
}

// Get returns an open session without creating one.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Touch marks userID's session as active now.
func (m *Manager) Touch(userID string) {
	if s, ok := m.Get(userID); ok {
		s.touch(m.deps.Clock.Now())
	}
}

// Close ends userID's session. It reports whether one was open.
func (m *Manager) Close(userID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return false
	}
	s.close()
	m.deps.Metrics.SessionClosed()
	m.logger.Info("Session closed", zap.String("userID", userID))
	return true
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Reap closes every session that has no live connection and has been idle
// for at least the idle timeout. It returns the number closed.
func (m *Manager) Reap() int {
	now := m.deps.Clock.Now()

	// Judged idle and removed under one lock: Open never hands out a
	// session this sweep is about to close.
	m.mu.Lock()
	var idle []*Session
	for userID, s := range m.sessions {
		if m.deps.Presence != nil && m.deps.Presence.ConnectionCount(userID) > 0 {
			continue
		}
		if now.Sub(s.idleSince()) >= m.config.IdleTimeout {
			idle = append(idle, s)
			delete(m.sessions, userID)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.close()
		m.deps.Metrics.SessionClosed()
		m.logger.Info("Session closed", zap.String("userID", s.userID))
	}
	closed := len(idle)
	if closed > 0 {
		m.logger.Info("Reaped idle sessions", zap.Int("count", closed))
	}
	return closed
}

// Run reaps idle sessions every ReapInterval until ctx ends.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-m.deps.Clock.After(m.config.ReapInterval):
			m.Reap()
		}
	}
}

// CloseAll ends every session and rejects new ones.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	m.cancel()
	userIDs := make([]string, 0, len(m.sessions))
	for userID := range m.sessions {
		userIDs = append(userIDs, userID)
	}
	m.mu.Unlock()

	for _, userID := range userIDs {
		m.Close(userID)
	}
}
