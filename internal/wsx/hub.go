package wsx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/go-order-saga/internal/orders"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type Update struct {
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	orderID int64
	first   []byte
}

// Hub fans order status changes out to websocket watchers. Only Run touches
// the subscriber map.
type Hub struct {
	register   chan *client
	unregister chan *client
	broadcast  chan Update
	done       chan struct{}
	clients    map[int64]map[*client]bool
	log        *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Update, 64),
		done:       make(chan struct{}),
		clients:    make(map[int64]map[*client]bool),
		log:        log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case c := <-h.register:
			set, ok := h.clients[c.orderID]
			if !ok {
				set = make(map[*client]bool)
				h.clients[c.orderID] = set
			}
			set[c] = true
			c.send <- c.first
		case c := <-h.unregister:
			h.drop(c)
		case upd := <-h.broadcast:
			msg, _ := json.Marshal(upd)
			for c := range h.clients[upd.OrderID] {
				select {
				case c.send <- msg:
				default:
					// slow reader
					h.drop(c)
				}
			}
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
				}
			}
			h.clients = map[int64]map[*client]bool{}
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	set, ok := h.clients[c.orderID]
	if !ok || !set[c] {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.orderID)
	}
}

// BroadcastStatus never blocks the caller for long; updates are dropped once
// the hub has stopped.
func (h *Hub) BroadcastStatus(orderID int64, status orders.Status) {
	select {
	case h.broadcast <- Update{OrderID: orderID, Status: string(status)}:
	case <-h.done:
	case <-time.After(time.Second):
		h.log.Warn("status broadcast dropped", zap.Int64("order_id", orderID))
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Serve upgrades the request and streams updates for orderID, starting with
// its current status.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, orderID int64, current orders.Status) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	first, _ := json.Marshal(Update{OrderID: orderID, Status: string(current)})
	c := &client{
		conn:    conn,
		send:    make(chan []byte, 16),
		orderID: orderID,
		first:   first,
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer func() { _ = c.conn.Close() }()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
}
