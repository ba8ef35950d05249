// Package gateway is the thin websocket+HTTP transport adapter in front of
// the engine: it translates inbound JSON commands into registry/dispatch
// calls and fans outbound events back out over each connection's socket.
// It owns no game state.
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"pokertable/dispatch"
	"pokertable/events"
	"pokertable/holdem"
	"pokertable/registry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Gateway owns every live websocket connection and the registry they
// address commands to.
type Gateway struct {
	registry *registry.Registry
	log      *log.Logger

	mu          sync.RWMutex
	connections map[string]*connection
	nextConnID  uint64
}

// New builds a Gateway in front of reg.
func New(reg *registry.Registry, logger *log.Logger) *Gateway {
	return &Gateway{
		registry:    reg,
		log:         logger,
		connections: make(map[string]*connection),
	}
}

// connection is one upgraded socket, bound to a single userID for its
// lifetime.
type connection struct {
	id      string
	userID  uint64
	conn    *websocket.Conn
	send    chan []byte
	gateway *Gateway

	mu   sync.Mutex
	subs map[string]*dispatch.Subscription
}

// clientEnvelope is the inbound JSON shape. payload is re-decoded based on
// kind once the command target is known.
type clientEnvelope struct {
	Kind    string          `json:"kind"`
	TableID string          `json:"tableId"`
	Payload json.RawMessage `json:"payload"`
}

type joinTablePayload struct {
	Chair uint16 `json:"chair"`
	BuyIn int64  `json:"buyIn"`
}

type playerActionPayload struct {
	Kind   holdem.ActionKind `json:"kind"`
	Amount int64             `json:"amount"`
}

// subscribePayload carries the sequence number a reconnecting client last
// saw, so it resumes the event log from there instead of from the start.
type subscribePayload struct {
	Since uint64 `json:"since"`
}

// serverEnvelope wraps every outbound message, whether a relayed table
// event or a gateway-level error the table never saw.
type serverEnvelope struct {
	Type  string        `json:"type"`
	Event *events.Event `json:"event,omitempty"`
	Error string        `json:"error,omitempty"`
}

// HandleWebSocket upgrades the request and starts the connection's read and
// write pumps. userID identifies the caller; in production it comes from an
// authenticated session upstream of this handler.
func (g *Gateway) HandleWebSocket(userID uint64, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Error("websocket upgrade failed", "err", err)
		return
	}

	id := fmt.Sprintf("conn_%d", atomic.AddUint64(&g.nextConnID, 1))
	c := &connection{
		id:      id,
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, 256),
		gateway: g,
		subs:    make(map[string]*dispatch.Subscription),
	}

	g.mu.Lock()
	g.connections[id] = c
	g.mu.Unlock()

	g.log.Info("client connected", "conn", id, "userID", userID)

	go c.writePump()
	c.readPump()
}

func (c *connection) readPump() {
	defer func() {
		c.gateway.removeConnection(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.gateway.log.Warn("read error", "conn", c.id, "err", err)
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *connection) handleMessage(data []byte) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.sendError(err.Error())
		return
	}

	switch env.Kind {
	case "joinTable":
		var p joinTablePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.sendError(err.Error())
			return
		}
		c.withActor(env.TableID, func(a *dispatch.Actor) {
			if err := a.JoinTable(c.userID, p.Chair, p.BuyIn); err != nil {
				c.sendError(err.Error())
			}
		})

	case "leaveTable":
		c.withActor(env.TableID, func(a *dispatch.Actor) {
			if err := a.LeaveTable(c.userID); err != nil {
				c.sendError(err.Error())
			}
		})

	case "startHand":
		c.withActor(env.TableID, func(a *dispatch.Actor) {
			if err := a.StartHand(c.userID); err != nil {
				c.sendError(err.Error())
			}
		})

	case "playerAction":
		var p playerActionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			c.sendError(err.Error())
			return
		}
		c.withActor(env.TableID, func(a *dispatch.Actor) {
			if err := a.Submit(c.userID, p.Kind, p.Amount); err != nil {
				c.sendError(err.Error())
			}
		})

	case "subscribe":
		var p subscribePayload
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				c.sendError(err.Error())
				return
			}
		}
		c.subscribe(env.TableID, p.Since)

	default:
		c.sendError("unknown command kind: " + env.Kind)
	}
}

func (c *connection) withActor(tableID string, fn func(a *dispatch.Actor)) {
	actor, err := c.gateway.registry.Lookup(tableID)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	fn(actor)
}

func (c *connection) subscribe(tableID string, since uint64) {
	actor, err := c.gateway.registry.Lookup(tableID)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	c.mu.Lock()
	if _, already := c.subs[tableID]; already {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	sub, err := actor.Subscribe(c.userID, since)
	if err != nil {
		c.sendError(err.Error())
		return
	}

	c.mu.Lock()
	c.subs[tableID] = sub
	c.mu.Unlock()

	go func() {
		for ev := range sub.Events {
			ev := ev
			c.sendEvent(&ev)
		}
	}()
}

func (c *connection) sendEvent(ev *events.Event) {
	c.sendJSON(serverEnvelope{Type: "event", Event: ev})
}

func (c *connection) sendError(msg string) {
	c.sendJSON(serverEnvelope{Type: "error", Error: msg})
}

func (c *connection) sendJSON(env serverEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		c.gateway.log.Warn("dropping message for slow connection", "conn", c.id)
	}
}

func (c *connection) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (g *Gateway) removeConnection(c *connection) {
	c.mu.Lock()
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.mu.Unlock()

	g.mu.Lock()
	delete(g.connections, c.id)
	g.mu.Unlock()
	g.log.Info("client disconnected", "conn", c.id)
}

// CreateTableHTTP is a small REST escape hatch for lobby creation, since a
// table doesn't exist yet for any websocket to subscribe to.
func (g *Gateway) CreateTableHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		OwnerUserID uint64 `json:"ownerUserId"`
		MaxPlayers  int    `json:"maxPlayers"`
		SmallBlind  int64  `json:"smallBlind"`
		BigBlind    int64  `json:"bigBlind"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cfg := holdem.Config{
		MaxPlayers:    req.MaxPlayers,
		MinPlayers:    2,
		SmallBlind:    req.SmallBlind,
		BigBlind:      req.BigBlind,
		ActionTimeout: 30 * time.Second,
	}
	_, id, err := g.registry.CreateTable(cfg, req.OwnerUserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"tableId": id})
}
