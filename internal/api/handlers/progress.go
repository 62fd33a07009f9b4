package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wonny/aegis-signal/internal/contracts"
	"github.com/wonny/aegis-signal/pkg/logger"
)

const (
	progressBuffer = 32
	writeWait      = 10 * time.Second
	pingPeriod     = 30 * time.Second
)

// ProgressHub fans run progress events out to websocket subscribers.
// Notify never blocks: a subscriber whose buffer is full loses the event.
type ProgressHub struct {
	upgrader websocket.Upgrader
	logger   *logger.Logger

	mu      sync.RWMutex
	clients map[*progressClient]struct{}
}

type progressClient struct {
	conn   *websocket.Conn
	send   chan contracts.ProgressEvent
	runID  string
	symbol string
}

// matches applies the optional ?run_id= / ?symbol= filters
func (c *progressClient) matches(ev contracts.ProgressEvent) bool {
	if c.runID != "" && c.runID != ev.RunID {
		return false
	}
	if c.symbol != "" && c.symbol != ev.InstrumentID {
		return false
	}
	return true
}

// NewProgressHub creates a new hub
func NewProgressHub(log *logger.Logger) *ProgressHub {
	if log == nil {
		log = logger.Nop()
	}
	return &ProgressHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger:  log.WithComponent("progress_hub"),
		clients: make(map[*progressClient]struct{}),
	}
}

// Notify implements contracts.ProgressNotifier
func (h *ProgressHub) Notify(ev contracts.ProgressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.matches(ev) {
			continue
		}
		select {
		case c.send <- ev:
		default:
			h.logger.WithField("run_id", ev.RunID).Debug("Progress subscriber too slow, event dropped")
		}
	}
}

// ClientCount returns the number of connected subscribers
func (h *ProgressHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams events until the peer goes away
// GET /ws/progress?run_id=...&symbol=...
func (h *ProgressHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	c := &progressClient{
		conn:   conn,
		send:   make(chan contracts.ProgressEvent, progressBuffer),
		runID:  r.URL.Query().Get("run_id"),
		symbol: r.URL.Query().Get("symbol"),
	}
	if c.symbol != "" {
		if sym, err := contracts.NormalizeSymbol(c.symbol); err == nil {
			c.symbol = sym
		}
	}

	h.register(c)
	go h.writeLoop(c)

	// 읽기 루프: 연결 종료 감지용
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.unregister(c)
}

func (h *ProgressHub) register(c *progressClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.WithField("clients", n).Debug("Progress subscriber connected")
}

// unregister removes c and closes its queue; Notify holds the read lock while
// sending, so no send can race the close
func (h *ProgressHub) unregister(c *progressClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *ProgressHub) writeLoop(c *progressClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
