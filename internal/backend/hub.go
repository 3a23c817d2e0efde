package backend

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

const (
	maxSubscribers = 16
	sendBuffer     = 16
	writeWait      = 5 * time.Second
)

// StatusMessage is pushed to websocket subscribers on every change.
type StatusMessage struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Enabled bool   `json:"enabled"`
}

type subscriber struct {
	send chan []byte
}

// Hub mirrors the controller's status line and activation control to
// websocket subscribers. It is both a StatusSink and a Toggle.
type Hub struct {
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	status  string
	enabled bool
	subs    map[*subscriber]struct{}
	closed  bool
}

func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		logger: logger,
		subs:   make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) SetStatus(text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = text
	h.broadcastLocked()
}

func (h *Hub) SetEnabled(enabled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.enabled == enabled {
		return
	}
	h.enabled = enabled
	h.broadcastLocked()
}

// Snapshot returns the current status and control state.
func (h *Hub) Snapshot() StatusMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshotLocked()
}

func (h *Hub) snapshotLocked() StatusMessage {
	return StatusMessage{Type: "status", Status: h.status, Enabled: h.enabled}
}

// Subscribers reports the number of connected websocket clients.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// broadcastLocked drops subscribers that cannot keep up.
func (h *Hub) broadcastLocked() {
	if len(h.subs) == 0 {
		return
	}
	msg, err := json.Marshal(h.snapshotLocked())
	if err != nil {
		h.logger.Errorf("marshal status: %v", err)
		return
	}
	for sub := range h.subs {
		select {
		case sub.send <- msg:
		default:
			h.logger.Warn("dropping slow status subscriber")
			delete(h.subs, sub)
			close(sub.send)
		}
	}
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.send)
	}
}

func (h *Hub) add() (*subscriber, []byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || len(h.subs) >= maxSubscribers {
		return nil, nil, false
	}
	first, err := json.Marshal(h.snapshotLocked())
	if err != nil {
		return nil, nil, false
	}
	sub := &subscriber{send: make(chan []byte, sendBuffer)}
	h.subs[sub] = struct{}{}
	return sub, first, true
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; ok {
		delete(h.subs, sub)
		close(sub.send)
	}
}

// Subscribe upgrades the request and streams status messages until the
// client goes away.
func (h *Hub) Subscribe(c echo.Context) error {
	sub, first, ok := h.add()
	if !ok {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "too many subscribers")
	}
	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.remove(sub)
		h.logger.Errorf("websocket upgrade: %v", err)
		return nil
	}
	defer func() { _ = ws.Close() }()
	h.logger.Debugf("status subscriber connected from %s", c.RealIP())

	// reader only watches for the client closing
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(msg []byte) error {
		_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
		return ws.WriteMessage(websocket.TextMessage, msg)
	}
	if err := write(first); err != nil {
		h.remove(sub)
		return nil
	}
	for {
		select {
		case msg, ok := <-sub.send:
			if !ok {
				_ = ws.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
				return nil
			}
			if err := write(msg); err != nil {
				h.remove(sub)
				return nil
			}
		case <-gone:
			h.remove(sub)
			h.logger.Debug("status subscriber disconnected")
			return nil
		}
	}
}
