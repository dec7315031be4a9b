package in

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"laborwatch/internal/modules/contraction/dto"
	contractionin "laborwatch/internal/modules/contraction/port/in"
)

const (
	writeTimeout = 10 * time.Second
	pongWait     = 60 * time.Second
	// must be less than pongWait
	pingPeriod  = (pongWait * 9) / 10
	sendBufSize = 16
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// the server binds to loopback by default; put a proxy in front for anything else
	CheckOrigin: func(*http.Request) bool { return true },
}

// SeriesMessage is the envelope sent to chart clients. Event is "snapshot"
// with a full SeriesOutput, or "point" with a PointMessage.
type SeriesMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type PointMessage struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Mode  string  `json:"mode"`
	Level string  `json:"level"`
}

// SeriesHub streams the live series to websocket clients: a snapshot on
// connect and whenever the series is reset or re-moded, then one point per
// completed contraction.
type SeriesHub struct {
	usecase contractionin.Usecase
	logger  *slog.Logger
	updates <-chan dto.SeriesUpdate
	cancel  func()

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewSeriesHub(usecase contractionin.Usecase, logger *slog.Logger) *SeriesHub {
	if logger == nil {
		logger = slog.Default()
	}
	updates, cancel := usecase.SubscribeSeries(sendBufSize)
	return &SeriesHub{usecase: usecase, logger: logger, updates: updates, cancel: cancel, clients: map[*wsClient]struct{}{}}
}

// Run forwards feed updates to clients until ctx is cancelled, then closes
// every connection.
func (h *SeriesHub) Run(ctx context.Context) {
	defer h.cancel()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case update, ok := <-h.updates:
			if !ok {
				h.closeAll()
				return
			}
			h.broadcast(h.messageFor(update))
		}
	}
}

func (h *SeriesHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, sendBufSize)}
	h.register(c)
	defer h.unregister(c)

	go c.writePump()
	c.readPump()
}

func (h *SeriesHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *SeriesHub) messageFor(update dto.SeriesUpdate) SeriesMessage {
	if update.Reset {
		return h.snapshot()
	}
	return SeriesMessage{Event: "point", Data: PointMessage{
		X:     update.X,
		Y:     update.Y,
		Mode:  update.Mode,
		Level: update.Level,
	}}
}

func (h *SeriesHub) snapshot() SeriesMessage {
	series, err := h.usecase.LiveSeries(context.Background())
	if err != nil {
		h.logger.Error("read live series", "err", err)
	}
	return SeriesMessage{Event: "snapshot", Data: series}
}

// register queues the current snapshot before the client can see any
// broadcast. A point already in flight may repeat the snapshot's last x;
// clients key points by x.
func (h *SeriesHub) register(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	if data, err := json.Marshal(h.snapshot()); err == nil {
		c.send <- data
	}
}

func (h *SeriesHub) unregister(c *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *SeriesHub) dropLocked(c *wsClient) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *SeriesHub) broadcast(msg SeriesMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode series message", "err", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// too slow to keep up; it reconnects and gets a fresh snapshot
			h.dropLocked(c)
		}
	}
}

func (h *SeriesHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer c.conn.Close()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
