package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/semaphore"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxFrameSize   = 64 << 10
	sendBufferSize = 64
)

// Hub tracks live WebSocket clients so the server can report and close them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every client connection; their pumps then exit.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.conn.Close()
	}
}

// Client is one WebSocket connection. Every inbound frame is handled in its
// own goroutine; responses go back through send to the single writer.
type Client struct {
	server   *Server
	conn     *websocket.Conn
	send     chan []byte
	done     chan struct{}
	id       string
	inflight *semaphore.Weighted
}

// reply queues a response unless the connection is already gone.
func (c *Client) reply(resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		c.server.logger.Errorw("response_marshal_failed", "client", c.id, "err", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.done:
		c.server.logger.Warnw("response_dropped", "client", c.id, "request_id", resp.RequestID)
	}
}

// readPump reads frames until the connection fails and dispatches each one.
func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.server.hub.unregister(c)
		close(c.done)
		c.conn.Close()
		c.server.logger.Infow("ws_client_disconnected", "client", c.id, "total", c.server.hub.Len())
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warnw("ws_read_failed", "client", c.id, "err", err)
			}
			return
		}

		if err := c.inflight.Acquire(ctx, 1); err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		go func(frame []byte) {
			defer c.inflight.Release(1)
			c.reply(c.server.HandleFrame(ctx, frame))
		}(frame)
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// handleWebSocket upgrades the request and starts the client's pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnw("ws_upgrade_failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := &Client{
		server:   s,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		done:     make(chan struct{}),
		id:       conn.RemoteAddr().String(),
		inflight: semaphore.NewWeighted(s.cfg.MaxInFlight),
	}

	s.hub.register(client)
	s.logger.Infow("ws_client_connected", "client", client.id, "total", s.hub.Len())

	go client.writePump()
	go client.readPump(s.baseCtx)
}
