package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/sonora-labs/sonora-go/internal/webhook"
)

// eventTail fans out every dispatched webhook event to connected
// websocket clients, for the admin dashboard's live activity feed.
type eventTail struct {
	logger *zap.SugaredLogger

	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newEventTail(logger *zap.SugaredLogger, dispatcher *webhook.Dispatcher) *eventTail {
	t := &eventTail{
		logger:  logger,
		clients: make(map[*websocket.Conn]struct{}),
	}
	dispatcher.Tap(t.broadcast)
	return t
}

func (t *eventTail) broadcast(event webhook.Event) {
	t.mu.Lock()
	clients := make([]*websocket.Conn, 0, len(t.clients))
	for c := range t.clients {
		clients = append(clients, c)
	}
	t.mu.Unlock()

	for _, c := range clients {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := wsjson.Write(ctx, c, event)
		cancel()
		if err != nil {
			t.remove(c)
		}
	}
}

func (t *eventTail) add(c *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clients[c] = struct{}{}
}

func (t *eventTail) remove(c *websocket.Conn) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.clients, c)
}

// handler upgrades the request and keeps the connection registered
// until the client disconnects.
func (t *eventTail) handler(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		if t.logger != nil {
			t.logger.Warnw("websocket upgrade failed", "error", err)
		}
		return
	}
	defer c.CloseNow()

	t.add(c)
	defer t.remove(c)

	for {
		if _, _, err := c.Read(r.Context()); err != nil {
			return
		}
	}
}
