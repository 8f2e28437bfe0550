package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"kaizen-votes/internal/api/middleware"
	"kaizen-votes/internal/model"
	"kaizen-votes/internal/vote"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // plugins are not browsers
	},
}

// Message is the envelope pushed to plugins.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

type client struct {
	serverID uint
	conn     *websocket.Conn
	send     chan []byte
}

// Hub keeps the live connections of paired plugins, grouped by server.
type Hub struct {
	mu      sync.RWMutex
	servers map[uint]map[*client]struct{}
}

func NewHub() *Hub {
	return &Hub{servers: make(map[uint]map[*client]struct{})}
}

// Handler upgrades a request already authenticated by middleware.PluginAuth.
func (h *Hub) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		server := middleware.PluginServer(c)
		if server == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization token required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("[ws] upgrade failed for server %d: %v", server.ID, err)
			return
		}

		cl := &client{serverID: server.ID, conn: conn, send: make(chan []byte, sendBuffer)}
		h.register(cl)
		log.Printf("[ws] plugin connected for server %d", server.ID)

		go h.writePump(cl)
		h.readPump(cl)
	}
}

// VoteSettled pushes the vote to the plugins of its server.
func (h *Hub) VoteSettled(_ context.Context, v model.Vote, s model.Server) {
	h.Broadcast(s.ID, Message{Type: "vote.received", Data: vote.NewEvent(v)})
}

// Broadcast queues msg for every connection of the server. Slow connections
// whose buffer is full are dropped.
func (h *Hub) Broadcast(serverID uint, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[ws] marshal %s: %v", msg.Type, err)
		return
	}

	h.mu.RLock()
	var slow []*client
	for cl := range h.servers[serverID] {
		select {
		case cl.send <- data:
		default:
			slow = append(slow, cl)
		}
	}
	h.mu.RUnlock()

	for _, cl := range slow {
		h.unregister(cl)
	}
}

// Connections reports how many plugins of the server are connected.
func (h *Hub) Connections(serverID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.servers[serverID])
}

func (h *Hub) register(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.servers[cl.serverID]
	if !ok {
		set = make(map[*client]struct{})
		h.servers[cl.serverID] = set
	}
	set[cl] = struct{}{}
}

func (h *Hub) unregister(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.servers[cl.serverID]
	if _, ok := set[cl]; !ok {
		return
	}
	delete(set, cl)
	if len(set) == 0 {
		delete(h.servers, cl.serverID)
	}
	close(cl.send)
}

// readPump discards inbound frames; it exists to process pongs and notice
// disconnects.
func (h *Hub) readPump(cl *client) {
	defer func() {
		h.unregister(cl)
		cl.conn.Close()
		log.Printf("[ws] plugin disconnected for server %d", cl.serverID)
	}()

	cl.conn.SetReadLimit(4096)
	cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[ws] read error for server %d: %v", cl.serverID, err)
			}
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.conn.Close()
	}()

	for {
		select {
		case data, ok := <-cl.send:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
