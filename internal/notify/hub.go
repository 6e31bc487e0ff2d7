package notify

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"clipflow/internal/logging"
	"clipflow/internal/metrics"
)

// Event names pushed to connected clients.
const (
	EventUploaded  = "video:uploaded"
	EventProgress  = "video:progress"
	EventCompleted = "video:completed"
)

// Envelope is the wire format for pushed events.
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// UploadedPayload accompanies EventUploaded.
type UploadedPayload struct {
	VideoID string `json:"videoId"`
}

// ProgressPayload accompanies EventProgress.
type ProgressPayload struct {
	VideoID  string `json:"videoId"`
	Progress int    `json:"progress"`
	Status   string `json:"status"`
}

// CompletedPayload accompanies EventCompleted.
type CompletedPayload struct {
	VideoID     string `json:"videoId"`
	Status      string `json:"status"`
	Sensitivity string `json:"sensitivity"`
}

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second
	// pongWait is how long a connection may stay silent before it is
	// considered dead.
	pongWait = 60 * time.Second
	// pingPeriod must be shorter than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// sendBuffer is the per-connection outbound queue. Delivery is
	// best-effort; a slow consumer overflowing the buffer is dropped.
	sendBuffer = 32
)

// Conn is one subscribed websocket connection.
type Conn struct {
	ws    *websocket.Conn
	owner string
	send  chan Envelope
	hub   *Hub

	closeOnce sync.Once
}

// Hub fans events out to the live connections of each owner. Every
// connection joined to an owner's room receives every event for that
// owner (broadcast, not load-balanced). Publishing to an owner with no
// connections is a no-op.
type Hub struct {
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browsers connect from arbitrary origins; auth happens via
			// the bearer token before the upgrade.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		rooms: make(map[string]map[*Conn]struct{}),
	}
}

// Upgrade upgrades an HTTP request to a websocket connection bound to the
// given owner and starts its read/write pumps. The connection joins the
// owner's room once the client sends a join message.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, ownerID string) (*Conn, error) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}

	conn := &Conn{
		ws:    ws,
		owner: ownerID,
		send:  make(chan Envelope, sendBuffer),
		hub:   h,
	}

	metrics.WSConnectionsActive.Inc()

	go conn.writePump()
	go conn.readPump()

	return conn, nil
}

// Join subscribes a connection to its owner's room.
func (h *Hub) Join(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[conn.owner]
	if !ok {
		room = make(map[*Conn]struct{})
		h.rooms[conn.owner] = room
	}
	room[conn] = struct{}{}

	logging.Debug("ws: connection joined room %s (%d active)", conn.owner, len(room))
}

// leave removes a connection from its room, dropping empty rooms, and
// closes its send queue. Holding the write lock here and sending only
// under the read lock in Publish keeps the close from racing a send.
func (h *Hub) leave(conn *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	close(conn.send)

	room, ok := h.rooms[conn.owner]
	if !ok {
		return
	}
	delete(room, conn)
	if len(room) == 0 {
		delete(h.rooms, conn.owner)
	}
}

// Publish delivers an event to every connection currently joined to the
// owner's room. Delivery is at-most-once: connections that join later
// never see the event, and a connection too slow to drain its queue is
// disconnected rather than blocking the publisher.
func (h *Hub) Publish(ownerID, event string, payload interface{}) {
	metrics.WSEventsPublished.WithLabelValues(event).Inc()

	envelope := Envelope{Event: event, Data: payload}

	h.mu.RLock()
	var slow []*Conn
	for conn := range h.rooms[ownerID] {
		select {
		case conn.send <- envelope:
		default:
			slow = append(slow, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range slow {
		logging.Warn("ws: dropping slow connection in room %s", ownerID)
		conn.close()
	}
}

// RoomSize reports the number of connections joined for an owner.
func (h *Hub) RoomSize(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[ownerID])
}

// CloseAll disconnects every connection; used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*Conn, 0)
	for _, room := range h.rooms {
		for conn := range room {
			conns = append(conns, conn)
		}
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.close()
	}
}

// joinMessage is the only inbound message type clients send.
type joinMessage struct {
	Type string `json:"type"`
}

// readPump consumes inbound messages until the connection dies. A join
// message subscribes the connection to its owner's room; everything else
// is ignored.
func (c *Conn) readPump() {
	defer c.close()

	c.ws.SetReadLimit(1024)
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg joinMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Debug("ws: read error for room %s: %v", c.owner, err)
			}
			return
		}
		if msg.Type == "join" {
			c.hub.Join(c)
		}
	}
}

// writePump sends queued events and keepalive pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case envelope, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteJSON(envelope); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close tears the connection down exactly once.
func (c *Conn) close() {
	c.closeOnce.Do(func() {
		c.hub.leave(c)
		if err := c.ws.Close(); err != nil {
			logging.Debug("ws: close error for room %s: %v", c.owner, err)
		}
		metrics.WSConnectionsActive.Dec()
	})
}
