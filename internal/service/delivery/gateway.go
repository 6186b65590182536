package delivery

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/rent-in-out1/rent-in-out-backend/internal/model/chat"
)

const (
	publishTimeout   = 2 * time.Second
	subscriberBuffer = 16
)

// Broker relays payloads between API instances so every instance can deliver
// to the users attached to it.
type Broker interface {
	Publish(ctx context.Context, userID string, payload []byte) error
}

// Envelope is what goes over the wire to clients.
type Envelope struct {
	Type           string             `json:"type"`
	RoomID         string             `json:"roomId"`
	ConversationID string             `json:"conversationId"`
	Data           *chat.Conversation `json:"data,omitempty"`
	Timestamp      int64              `json:"timestamp"`
}

// Subscriber receives payloads for one user over a non-websocket channel (SSE).
type Subscriber struct {
	UserID string
	C      chan []byte
}

// Gateway keeps one live websocket per user plus any number of SSE
// subscribers and implements chat.Notifier on top of them.
type Gateway struct {
	mu      sync.RWMutex
	sockets map[string]*Connection
	streams map[string]map[*Subscriber]struct{}

	broker Broker
	logger *log.Logger
	now    func() time.Time
}

var _ chat.Notifier = (*Gateway)(nil)

// NewGateway creates a gateway. With a nil broker events are delivered to
// locally attached users only.
func NewGateway(broker Broker) *Gateway {
	return &Gateway{
		sockets: make(map[string]*Connection),
		streams: make(map[string]map[*Subscriber]struct{}),
		broker:  broker,
		logger:  log.Default().WithPrefix("delivery"),
		now:     time.Now,
	}
}

// SetBroker attaches the cross-instance relay after construction.
func (g *Gateway) SetBroker(broker Broker) {
	g.mu.Lock()
	g.broker = broker
	g.mu.Unlock()
}

// Notify implements chat.Notifier. Failures are logged, never returned.
func (g *Gateway) Notify(ctx context.Context, participantID string, event chat.Event) {
	payload, err := json.Marshal(Envelope{
		Type:           event.Type,
		RoomID:         event.RoomID,
		ConversationID: event.ConversationID,
		Data:           event.Conversation,
		Timestamp:      g.now().UnixMilli(),
	})
	if err != nil {
		g.logger.Error("failed to encode event", "type", event.Type, "err", err)
		return
	}

	g.mu.RLock()
	broker := g.broker
	g.mu.RUnlock()

	if broker != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		err := broker.Publish(pubCtx, participantID, payload)
		if err == nil {
			return
		}
		g.logger.Warn("broker publish failed, delivering locally", "user", participantID, "err", err)
	}
	g.Deliver(participantID, payload)
}

// Deliver pushes payload to the user's local socket and streams and returns
// how many of them accepted it.
func (g *Gateway) Deliver(userID string, payload []byte) int {
	g.mu.RLock()
	conn := g.sockets[userID]
	subs := make([]*Subscriber, 0, len(g.streams[userID]))
	for sub := range g.streams[userID] {
		subs = append(subs, sub)
	}
	g.mu.RUnlock()

	delivered := 0
	if conn != nil {
		if err := conn.Send(payload); err == nil {
			delivered++
		} else {
			g.logger.Debug("socket rejected payload", "user", userID, "err", err)
		}
	}
	for _, sub := range subs {
		select {
		case sub.C <- payload:
			delivered++
		default:
			g.logger.Debug("dropping payload for slow stream", "user", userID)
		}
	}
	return delivered
}

// Serve attaches ws for userID and blocks until the peer goes away.
func (g *Gateway) Serve(userID string, ws *websocket.Conn) {
	conn := NewConnection(userID, ws)
	g.attach(conn)
	defer g.detach(conn)

	go conn.writeLoop()
	conn.readLoop()
}

// attach registers conn, replacing and closing any previous socket of the user.
func (g *Gateway) attach(conn *Connection) {
	g.mu.Lock()
	previous := g.sockets[conn.UserID]
	g.sockets[conn.UserID] = conn
	online := len(g.sockets)
	g.mu.Unlock()

	if previous != nil {
		previous.Close(4001, "session replaced")
	}
	g.logger.Info("user connected", "user", conn.UserID, "online", online)
}

func (g *Gateway) detach(conn *Connection) {
	g.mu.Lock()
	if g.sockets[conn.UserID] == conn {
		delete(g.sockets, conn.UserID)
	}
	g.mu.Unlock()
	conn.Close(websocket.CloseNormalClosure, "")
	g.logger.Info("user disconnected", "user", conn.UserID)
}

// Online reports whether the user has a live websocket on this instance.
func (g *Gateway) Online(userID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.sockets[userID]
	return ok
}

// Subscribe registers an SSE-style subscriber. Callers must Unsubscribe.
func (g *Gateway) Subscribe(userID string) *Subscriber {
	sub := &Subscriber{UserID: userID, C: make(chan []byte, subscriberBuffer)}
	g.mu.Lock()
	set := g.streams[userID]
	if set == nil {
		set = make(map[*Subscriber]struct{})
		g.streams[userID] = set
	}
	set[sub] = struct{}{}
	g.mu.Unlock()
	return sub
}

// Unsubscribe removes sub. The channel is left open for the reader to drop.
func (g *Gateway) Unsubscribe(sub *Subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := g.streams[sub.UserID]
	delete(set, sub)
	if len(set) == 0 {
		delete(g.streams, sub.UserID)
	}
}

// Close disconnects every attached socket.
func (g *Gateway) Close() {
	g.mu.Lock()
	conns := make([]*Connection, 0, len(g.sockets))
	for _, conn := range g.sockets {
		conns = append(conns, conn)
	}
	g.sockets = make(map[string]*Connection)
	g.streams = make(map[string]map[*Subscriber]struct{})
	g.mu.Unlock()

	for _, conn := range conns {
		conn.Close(websocket.CloseGoingAway, "server shutdown")
	}
}
