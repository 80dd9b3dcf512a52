package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/beautycare/edgecache/internal/logger"
	"github.com/beautycare/edgecache/internal/messaging"
	"github.com/beautycare/edgecache/internal/observability"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second
	// pingInterval keeps idle page connections alive.
	pingInterval = 30 * time.Second
	// pageSendBuffer is each page's outbound queue; broadcasts to a slow
	// page are dropped rather than blocking the rest.
	pageSendBuffer = 16
)

// TypeControllerChanged tells pages a newly activated worker has taken
// control; they keep their connection and are now served by the new
// generation.
const TypeControllerChanged = "CONTROLLER_CHANGED"

// controllerChanged is the claim broadcast sent at activation.
type controllerChanged struct {
	Type       string `json:"type"`
	Generation string `json:"generation"`
}

// pageClient is one connected application page.
type pageClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// Hub owns the page channel: it tracks connected pages, publishes their
// inbound messages onto the bus, and fans broadcasts out to every page
// connected at the time of the call.
type Hub struct {
	bus     *messaging.Bus
	metrics *observability.Metrics
	log     logger.Logger

	upgrader websocket.Upgrader

	mu    sync.RWMutex
	pages map[string]*pageClient
}

// NewHub creates a hub publishing inbound messages to the given bus.
func NewHub(bus *messaging.Bus, metrics *observability.Metrics, log logger.Logger) *Hub {
	return &Hub{
		bus:     bus,
		metrics: metrics,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Pages are same-origin; the proxy fronts the whole site.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		pages: make(map[string]*pageClient),
	}
}

// HandleWS upgrades a page connection and services it until it closes.
func (h *Hub) HandleWS(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	page := &pageClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, pageSendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.pages[page.id] = page
	h.mu.Unlock()
	h.metrics.ConnectedPages.Inc()
	h.log.Debug("page connected", logger.String("page_id", page.id))

	go h.writeLoop(page)
	h.readLoop(page)
	return nil
}

// readLoop publishes each inbound JSON message to the bus until the
// connection drops.
func (h *Hub) readLoop(page *pageClient) {
	defer h.removePage(page)

	for {
		_, data, err := page.conn.ReadMessage()
		if err != nil {
			return
		}

		var discriminator struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &discriminator); err != nil || discriminator.Type == "" {
			h.log.Warn("discarding message without type",
				logger.String("page_id", page.id))
			continue
		}

		h.bus.Publish(&messaging.Envelope{
			Type:   discriminator.Type,
			Data:   data,
			PageID: page.id,
		})
	}
}

// writeLoop drains the page's send queue and keeps the connection alive.
func (h *Hub) writeLoop(page *pageClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		page.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-page.send:
			if !ok {
				return
			}
			page.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // deadline errors surface on the write
			if err := page.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			page.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck // deadline errors surface on the write
			if err := page.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-page.done:
			return
		}
	}
}

func (h *Hub) removePage(page *pageClient) {
	h.mu.Lock()
	_, present := h.pages[page.id]
	delete(h.pages, page.id)
	h.mu.Unlock()

	if present {
		h.metrics.ConnectedPages.Dec()
		close(page.done)
		page.conn.Close()
		h.log.Debug("page disconnected", logger.String("page_id", page.id))
	}
}

// Broadcast delivers a message to every page connected right now. Pages
// that connect afterwards do not receive it; a page whose queue is full
// is skipped.
func (h *Hub) Broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal broadcast",
			logger.Any("message", msg),
			logger.Error(err))
		return
	}

	h.mu.RLock()
	pages := make([]*pageClient, 0, len(h.pages))
	for _, p := range h.pages {
		pages = append(pages, p)
	}
	h.mu.RUnlock()

	for _, p := range pages {
		select {
		case p.send <- data:
		default:
			h.log.Warn("dropping broadcast for slow page",
				logger.String("page_id", p.id))
		}
	}
}

// ClaimAll notifies every connected page that this worker generation now
// controls them.
func (h *Hub) ClaimAll(generation string) {
	h.Broadcast(controllerChanged{
		Type:       TypeControllerChanged,
		Generation: generation,
	})
}

// Close disconnects all pages.
func (h *Hub) Close() {
	h.mu.Lock()
	pages := make([]*pageClient, 0, len(h.pages))
	for _, p := range h.pages {
		pages = append(pages, p)
	}
	h.mu.Unlock()

	for _, p := range pages {
		h.removePage(p)
	}
}

// PageCount returns the number of connected pages.
func (h *Hub) PageCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pages)
}
