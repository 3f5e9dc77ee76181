package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/sonora-labs/sonora-go/internal/core"
	"github.com/sonora-labs/sonora-go/internal/webhook"
	"go.uber.org/zap"
)

// LinkStatus is the lifecycle state of one server connection.
type LinkStatus string

const (
	StatusInitializing LinkStatus = "INITIALIZING"
	StatusConnecting   LinkStatus = "CONNECTING"
	StatusHandshaking  LinkStatus = "HANDSHAKING"
	StatusReady        LinkStatus = "READY"
	StatusDisconnected LinkStatus = "DISCONNECTED"
)

// Common errors returned by the session manager.
var (
	ErrLinkExists   = errors.New("link already exists")
	ErrLinkNotFound = errors.New("link not found")
	ErrNotReady     = errors.New("link is not ready")
)

// Link owns one server connection for the lifetime of its process:
// dial, handshake, transport, channel registry and dispatcher. It
// generalizes the teacher's per-session WAClient from a pairing/QR
// lifecycle to the connect/handshake/ready lifecycle of spec.md §4.
type Link struct {
	ID       string
	username string

	mu             sync.RWMutex
	status         LinkStatus
	connectedAt    *time.Time
	lastActivityAt time.Time
	channelsOpened int
	lastErr        error

	logger     *zap.SugaredLogger
	metrics    core.Metrics
	dispatcher *webhook.Dispatcher

	serverAddress string
	clientID      uint32
	clientRev     uint32
	cacheHash     [20]byte

	conn      net.Conn
	session   *core.Session
	transport *core.Transport
	registry  *core.Registry

	cancel context.CancelFunc
}

// LinkConfig configures a Link before it dials.
type LinkConfig struct {
	Username       string
	ServerAddress  string
	ClientID       uint32
	ClientRevision uint32
	CacheHash      [20]byte
	Logger         *zap.SugaredLogger
	Metrics        core.Metrics
	Dispatcher     *webhook.Dispatcher
}

// NewLink constructs an unconnected link.
func NewLink(id string, cfg LinkConfig) *Link {
	return &Link{
		ID:             id,
		username:       cfg.Username,
		status:         StatusInitializing,
		lastActivityAt: time.Now(),
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		dispatcher:     cfg.Dispatcher,
		serverAddress:  cfg.ServerAddress,
		clientID:       cfg.ClientID,
		clientRev:      cfg.ClientRevision,
		cacheHash:      cfg.CacheHash,
		registry:       core.NewRegistry(cfg.Metrics),
	}
}

// Connect dials the server, drives the handshake, and starts the
// receive loop in the background. It returns once the link is READY or
// the handshake has definitively failed.
func (l *Link) Connect(ctx context.Context) error {
	l.setStatus(StatusConnecting)
	l.notify(webhook.EventLinkConnecting, nil)

	dialCtx, cancelDial := context.WithTimeout(ctx, 10*time.Second)
	defer cancelDial()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", l.serverAddress)
	if err != nil {
		l.fail(err)
		return err
	}
	l.conn = conn

	session, err := core.NewSession(l.username, core.ClientConfig{
		ClientID:       l.clientID,
		ClientRevision: l.clientRev,
		ServerAddress:  l.serverAddress,
		CacheHash:      l.cacheHash,
		Logger:         l.logger,
	})
	if err != nil {
		l.fail(err)
		return err
	}
	l.session = session

	l.setStatus(StatusHandshaking)
	l.notify(webhook.EventLinkHandshaking, nil)

	hsCtx, cancelHS := context.WithTimeout(ctx, 15*time.Second)
	defer cancelHS()
	if err := core.Handshake(hsCtx, conn, session, l.metrics); err != nil {
		l.fail(err)
		return err
	}

	l.transport = core.NewTransport(conn, session, l.logger, l.metrics)
	dispatcher := core.NewChannelDispatcher(l.registry, l.logger)
	l.transport.AddListener(dispatcher)

	runCtx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	go func() {
		if err := l.transport.ReceiveLoop(runCtx); err != nil {
			l.fail(err)
		}
	}()

	l.mu.Lock()
	now := time.Now()
	l.status = StatusReady
	l.connectedAt = &now
	l.lastActivityAt = now
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.Infow("link ready", "id", l.ID)
	}
	l.notify(webhook.EventLinkReady, map[string]string{"linkId": l.ID})
	return nil
}

// Disconnect tears down the transport and connection.
func (l *Link) Disconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cancel != nil {
		l.cancel()
	}
	if l.transport != nil {
		_ = l.transport.Close()
	} else if l.conn != nil {
		_ = l.conn.Close()
	}
	l.status = StatusDisconnected
	l.notify(webhook.EventLinkDisconnected, map[string]string{"linkId": l.ID})
}

func (l *Link) setStatus(s LinkStatus) {
	l.mu.Lock()
	l.status = s
	l.mu.Unlock()
}

func (l *Link) fail(err error) {
	l.mu.Lock()
	l.status = StatusDisconnected
	l.lastErr = err
	l.mu.Unlock()
	if l.logger != nil {
		l.logger.Errorw("link failed", "id", l.ID, "error", err)
	}

	if core.IsKind(err, core.HandshakeRejected) {
		l.notify(webhook.EventHandshakeRejected, map[string]string{"linkId": l.ID, "error": err.Error()})
		return
	}
	l.notify(webhook.EventLinkDisconnected, map[string]string{"linkId": l.ID, "error": err.Error()})
}

// notify forwards eventType to the webhook dispatcher, if one was
// configured. A link created without a dispatcher (e.g. in tests)
// simply emits nothing.
func (l *Link) notify(eventType string, data interface{}) {
	if l.dispatcher != nil {
		l.dispatcher.Dispatch(eventType, data)
	}
}

// Status returns the link's current lifecycle state.
func (l *Link) Status() LinkStatus {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Send transmits one command over the link's transport. Returns
// ErrNotReady if the handshake has not yet completed.
func (l *Link) Send(command byte, payload []byte) error {
	l.mu.RLock()
	transport := l.transport
	ready := l.status == StatusReady
	l.mu.RUnlock()

	if !ready || transport == nil {
		return ErrNotReady
	}
	return transport.Send(command, payload)
}

// OpenChannel allocates and registers a channel, then invokes build to
// construct and send the request payload under it. build receives the
// allocated channel id so it can embed it in the payload, per spec.md
// §4.6. On a build error nothing is registered and nothing is sent; on
// a send error the registered channel is retired.
func (l *Link) OpenChannel(kind core.ChannelKind, listener core.ChannelListener, command byte, build func(channelID uint16) ([]byte, error)) (uint16, error) {
	id := l.registry.Allocate()
	payload, err := build(id)
	if err != nil {
		return 0, err
	}

	l.registry.Register(&core.Channel{ID: id, Kind: kind, Listener: notifyingListener{inner: listener, link: l}})

	if err := l.Send(command, payload); err != nil {
		l.registry.Retire(id)
		return 0, err
	}

	l.mu.Lock()
	l.channelsOpened++
	l.lastActivityAt = time.Now()
	l.mu.Unlock()

	l.notify(webhook.EventChannelOpened, map[string]interface{}{"linkId": l.ID, "channelId": id, "kind": kind})

	return id, nil
}

// notifyingListener wraps a caller's listener so the link can dispatch
// a channel.closed event alongside the caller's own OnEnd handling.
type notifyingListener struct {
	inner core.ChannelListener
	link  *Link
}

func (n notifyingListener) OnData(id uint16, data []byte) {
	n.inner.OnData(id, data)
}

func (n notifyingListener) OnEnd(id uint16) {
	n.inner.OnEnd(id)
	n.link.notify(webhook.EventChannelClosed, map[string]interface{}{"linkId": n.link.ID, "channelId": id})
}

// Info reports a snapshot of the link for the admin API.
func (l *Link) Info() LinkInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var lastErr string
	if l.lastErr != nil {
		lastErr = l.lastErr.Error()
	}

	return LinkInfo{
		ID:             l.ID,
		Status:         l.status,
		ConnectedAt:    l.connectedAt,
		LastActivityAt: l.lastActivityAt,
		ChannelsOpened: l.channelsOpened,
		OpenChannels:   l.registry.Len(),
		LastError:      lastErr,
	}
}

// LinkInfo is the JSON-facing view of a Link's state.
type LinkInfo struct {
	ID             string     `json:"id"`
	Status         LinkStatus `json:"status"`
	ConnectedAt    *time.Time `json:"connectedAt,omitempty"`
	LastActivityAt time.Time  `json:"lastActivityAt"`
	ChannelsOpened int        `json:"channelsOpened"`
	OpenChannels   int        `json:"openChannels"`
	LastError      string     `json:"lastError,omitempty"`
}
