package preview

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/qmd/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed between reads before the connection is considered dead.
	pongWait = 60 * time.Second

	// Ping period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size accepted from a peer.
	maxMessageSize = 512
)

// Hub fans reload notifications out to connected preview clients. A
// subscriber that cannot keep up or has disconnected is pruned on the next
// push attempt; pruning never fails the push for the remaining subscribers.
type Hub struct {
	register   chan *client
	unregister chan *websocket.Conn
	broadcast  chan []byte

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*client

	allowedOrigins []string
	log            logging.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// NewHub creates a hub accepting connections from the given origins.
func NewHub(allowedOrigins []string, log logging.Logger) *Hub {
	if log == nil {
		log = logging.Nop()
	}
	return &Hub{
		register:       make(chan *client),
		unregister:     make(chan *websocket.Conn),
		broadcast:      make(chan []byte, 16),
		clients:        make(map[*websocket.Conn]*client),
		allowedOrigins: allowedOrigins,
		log:            log.WithComponent("hub"),
	}
}

// Broadcast queues a message for every connected subscriber. Never blocks;
// if the hub's queue is full the message is dropped (subscribers reload on
// the next notification anyway).
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
	}
}

// SubscriberCount reports the number of live connections.
func (h *Hub) SubscriberCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades an HTTP request to a reload subscription.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "Origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: false,
	})
	if err != nil {
		h.log.Warn(r.Context(), err, "websocket upgrade failed")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	go c.writePump()
	go c.readPump()

	h.register <- c
}

// checkOrigin validates the request origin against the allowed set.
func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Scheme != "http" && originURL.Scheme != "https" {
		return false
	}

	for _, allowed := range h.allowedOrigins {
		if originURL.Host == allowed {
			return true
		}
	}
	return false
}

// Run owns the client registry until the context is cancelled, at which
// point all subscribers are dropped.
func (h *Hub) Run(ctx context.Context) {
	defer h.dropAll()

	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.clientsMu.Lock()
			h.clients[c.conn] = c
			total := len(h.clients)
			h.clientsMu.Unlock()
			h.log.Debug(ctx, "client connected", "total", total)

		case conn := <-h.unregister:
			h.clientsMu.Lock()
			if c, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				close(c.send)
				conn.Close(websocket.StatusNormalClosure, "")
			}
			total := len(h.clients)
			h.clientsMu.Unlock()
			h.log.Debug(ctx, "client disconnected", "total", total)

		case message := <-h.broadcast:
			h.clientsMu.RLock()
			var stale []*websocket.Conn
			for conn, c := range h.clients {
				select {
				case c.send <- message:
				default:
					stale = append(stale, conn)
				}
			}
			h.clientsMu.RUnlock()

			if len(stale) > 0 {
				h.clientsMu.Lock()
				for _, conn := range stale {
					if c, ok := h.clients[conn]; ok {
						delete(h.clients, conn)
						close(c.send)
						conn.Close(websocket.StatusNormalClosure, "")
					}
				}
				h.clientsMu.Unlock()
			}
		}
	}
}

func (h *Hub) dropAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for conn, c := range h.clients {
		delete(h.clients, conn)
		close(c.send)
		conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// readPump drains incoming frames so pings are answered and closure is
// detected promptly.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c.conn
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	c.conn.SetReadLimit(maxMessageSize)

	ctx := context.Background()
	for {
		readCtx, cancel := context.WithTimeout(ctx, pongWait)
		_, _, err := c.conn.Read(readCtx)
		cancel()
		if err != nil {
			return
		}
	}
}

// writePump serializes all writes to the connection.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	ctx := context.Background()
	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, message)
			cancel()
			if err != nil {
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
