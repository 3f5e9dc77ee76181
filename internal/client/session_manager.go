package client

import (
	"context"
	"sync"

	"github.com/sonora-labs/sonora-go/internal/core"
	"github.com/sonora-labs/sonora-go/internal/webhook"
	"go.uber.org/zap"
)

// Manager owns every Link the daemon has been asked to establish. Per
// spec.md's explicit non-goal of reconnection/credential persistence,
// it holds links purely in memory for the life of the process — there
// is no on-disk session store to load at startup.
type Manager struct {
	links map[string]*Link
	mu    sync.RWMutex

	logger     *zap.SugaredLogger
	metrics    core.Metrics
	dispatcher *webhook.Dispatcher
}

// NewManager creates an empty link manager. dispatcher may be nil, in
// which case links are created without webhook/event-tail notifications
// (used by tests that don't need the admin event feed).
func NewManager(logger *zap.SugaredLogger, metrics core.Metrics, dispatcher *webhook.Dispatcher) *Manager {
	return &Manager{
		links:      make(map[string]*Link),
		logger:     logger,
		metrics:    metrics,
		dispatcher: dispatcher,
	}
}

// CreateLink registers a new link under id and starts connecting it in
// the background.
func (m *Manager) CreateLink(id string, cfg LinkConfig) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.links[id]; exists {
		return nil, ErrLinkExists
	}

	cfg.Logger = m.logger
	cfg.Metrics = m.metrics
	cfg.Dispatcher = m.dispatcher
	link := NewLink(id, cfg)
	m.links[id] = link

	go func() {
		if err := link.Connect(context.Background()); err != nil && m.logger != nil {
			m.logger.Errorw("failed to connect link", "id", id, "error", err)
		}
	}()

	return link, nil
}

// GetLink returns a link by id.
func (m *Manager) GetLink(id string) (*Link, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	link, exists := m.links[id]
	return link, exists
}

// DeleteLink disconnects and removes a link.
func (m *Manager) DeleteLink(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, exists := m.links[id]
	if !exists {
		return ErrLinkNotFound
	}

	link.Disconnect()
	delete(m.links, id)
	return nil
}

// ListLinks returns every managed link.
func (m *Manager) ListLinks() []*Link {
	m.mu.RLock()
	defer m.mu.RUnlock()

	links := make([]*Link, 0, len(m.links))
	for _, link := range m.links {
		links = append(links, link)
	}
	return links
}

// Stats summarizes link status counts for the admin dashboard.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := ManagerStats{Total: len(m.links)}
	for _, link := range m.links {
		switch link.Status() {
		case StatusReady:
			stats.Ready++
			stats.Active++
		case StatusConnecting, StatusHandshaking:
			stats.Connecting++
			stats.Active++
		case StatusDisconnected:
			// not counted as active
		}
	}
	return stats
}

// DisconnectAll tears down every managed link, for graceful shutdown.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, link := range m.links {
		link.Disconnect()
	}
}

// ManagerStats holds aggregate link counts.
type ManagerStats struct {
	Total      int `json:"total"`
	Active     int `json:"active"`
	Ready      int `json:"ready"`
	Connecting int `json:"connecting"`
}
