package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"hyperliquid-trading-bot/internal/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is origin-gated by the CORS layer; the ws handshake accepts
	// any origin to allow non-browser consumers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub broadcasts bus events to connected websocket clients.
type Hub struct {
	bus    *events.EventBus
	logger zerolog.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	broadcast chan events.Event
	stopChan  chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

type wsClient struct {
	conn *websocket.Conn
	send chan events.Event
}

// NewHub creates the hub and subscribes it to every bus event.
func NewHub(bus *events.EventBus, logger zerolog.Logger) *Hub {
	h := &Hub{
		bus:       bus,
		logger:    logger.With().Str("component", "WSHub").Logger(),
		clients:   make(map[*wsClient]struct{}),
		broadcast: make(chan events.Event, 256),
		stopChan:  make(chan struct{}),
	}
	if bus != nil {
		bus.SubscribeAll(func(e events.Event) {
			select {
			case h.broadcast <- e:
			default:
				// Slow hub; drop rather than block the bus.
			}
		})
	}
	return h
}

// Start launches the broadcast loop.
func (h *Hub) Start() {
	h.wg.Add(1)
	go h.run()
}

// Stop closes every client connection and halts the loop.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
	h.wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		c.conn.Close()
	}
	h.clients = make(map[*wsClient]struct{})
}

func (h *Hub) run() {
	defer h.wg.Done()
	for {
		select {
		case e := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- e:
				default:
					// Slow client; skip this event for it.
				}
			}
			h.mu.RUnlock()
		case <-h.stopChan:
			return
		}
	}
}

// HandleWebSocket upgrades the connection and streams events until the
// client disconnects.
func (h *Hub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan events.Event, 64),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(client)
	h.readLoop(client)
}

func (h *Hub) writeLoop(c *wsClient) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(e); err != nil {
				h.drop(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(c)
				return
			}
		}
	}
}

// readLoop discards client messages; it exists to detect disconnects.
func (h *Hub) readLoop(c *wsClient) {
	defer h.drop(c)
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.conn.Close()
	}
}
