package viewer

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/brensch/agarenv/rollout"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512

	// AllWorkers subscribes a client to every worker's frames.
	AllWorkers = -1
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type message struct {
	worker int
	data   []byte
}

// Client is one websocket subscriber.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	worker int
}

func (c *Client) wants(worker int) bool {
	return c.worker == AllWorkers || c.worker == worker
}

// Hub fans frames out to websocket clients. Publish never blocks; frames
// are dropped when the hub is behind.
type Hub struct {
	clients map[*Client]bool

	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	watchers atomic.Int32
	dropped  atomic.Int64
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is cancelled, after
// disconnecting every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.unregisterClient(c)
			}
			return
		case c := <-h.register:
			h.registerClient(c)
		case c := <-h.unregister:
			h.unregisterClient(c)
		case m := <-h.broadcast:
			h.broadcastMessage(m)
		}
	}
}

// Watching reports whether any client is connected.
func (h *Hub) Watching() bool { return h.watchers.Load() > 0 }

// Dropped counts frames discarded because the hub was behind.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Publish queues f for every client subscribed to f.Worker.
func (h *Hub) Publish(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		log.Printf("Failed to marshal frame: %v", err)
		return
	}
	select {
	case h.broadcast <- message{worker: f.Worker, data: data}:
	default:
		h.dropped.Add(1)
	}
}

// Observer publishes every nth step of an episode while someone is
// watching. n <= 1 publishes every step.
func (h *Hub) Observer(n int) rollout.Observer {
	return func(si rollout.StepInfo) {
		if !h.Watching() {
			return
		}
		if n > 1 && si.Step%n != 0 && !si.Result.AllDone() {
			return
		}
		if f, ok := StepFrame(si); ok {
			h.Publish(f)
		}
	}
}

// ServeWS upgrades the request. The optional "worker" query parameter
// limits the stream to one rollout worker.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	worker := AllWorkers
	if v := r.URL.Query().Get("worker"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "bad worker", http.StatusBadRequest)
			return
		}
		worker = n
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	c := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		worker: worker,
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) registerClient(c *Client) {
	h.clients[c] = true
	h.watchers.Store(int32(len(h.clients)))
	log.Printf("Viewer connected (worker=%d, total=%d)", c.worker, len(h.clients))
}

func (h *Hub) unregisterClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.watchers.Store(int32(len(h.clients)))
	log.Printf("Viewer disconnected (remaining=%d)", len(h.clients))
}

func (h *Hub) broadcastMessage(m message) {
	for c := range h.clients {
		if !c.wants(m.worker) {
			continue
		}
		select {
		case c.send <- m.data:
		default:
			h.unregisterClient(c)
		}
	}
}

// readPump discards client messages and keeps the connection alive.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}

// writePump sends one text message per frame and pings on a timer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
