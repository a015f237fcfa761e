package messaging

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"estatehub/server/internal/apperr"
	"estatehub/server/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 32
)

// Envelope is the frame exchanged over the websocket.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type delivery struct {
	userIDs []uint
	client  *Client
	payload []byte
}

// Hub tracks websocket clients per user. The registry is owned by the Run
// goroutine; everything else talks to it over channels.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	deliver    chan delivery
	done       chan struct{}

	clients map[uint]map[*Client]struct{}
	logger  *logrus.Logger
}

func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, 256),
		done:       make(chan struct{}),
		clients:    make(map[uint]map[*Client]struct{}),
		logger:     logger,
	}
}

// Run serves the registry until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					h.remove(c)
				}
			}
			return

		case c := <-h.register:
			set, ok := h.clients[c.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[c.userID] = set
			}
			set[c] = struct{}{}
			metrics.WebsocketConnected()
			h.logger.WithFields(c.fields()).Debug("Websocket client connected")

		case c := <-h.unregister:
			h.remove(c)

		case d := <-h.deliver:
			if d.client != nil {
				if _, ok := h.clients[d.client.userID][d.client]; ok {
					h.push(d.client, d.payload)
				}
				continue
			}
			for _, id := range d.userIDs {
				for c := range h.clients[id] {
					h.push(c, d.payload)
				}
			}
		}
	}
}

// push drops clients whose send buffer is full.
func (h *Hub) push(c *Client, payload []byte) {
	select {
	case c.send <- payload:
	default:
		h.logger.WithFields(c.fields()).Warn("Dropping slow websocket client")
		h.remove(c)
	}
}

func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	metrics.WebsocketDisconnected()
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// SendToUsers queues an event for every connection of the users.
func (h *Hub) SendToUsers(userIDs []uint, event string, data any) {
	payload, err := encode(event, data)
	if err != nil {
		h.logger.WithError(err).WithField("event", event).Error("Failed to encode websocket event")
		return
	}
	h.enqueue(delivery{userIDs: append([]uint(nil), userIDs...), payload: payload})
}

func (h *Hub) sendToClient(c *Client, event string, data any) {
	payload, err := encode(event, data)
	if err != nil {
		h.logger.WithError(err).WithField("event", event).Error("Failed to encode websocket event")
		return
	}
	h.enqueue(delivery{client: c, payload: payload})
}

func (h *Hub) enqueue(d delivery) {
	select {
	case h.deliver <- d:
	case <-h.done:
	}
}

// Client is one websocket connection of a user.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	userID uint
	send   chan []byte
}

func newClient(hub *Hub, conn *websocket.Conn, userID uint) *Client {
	return &Client{
		id:     uuid.NewString(),
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
	}
}

func (c *Client) fields() logrus.Fields {
	return logrus.Fields{"user_id": c.userID, "client_id": c.id}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Connections authenticate with a token, not cookies
	CheckOrigin: func(*http.Request) bool { return true },
}

// Serve upgrades an authenticated request and pumps frames until the
// connection closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID uint, svc *Service) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	c := newClient(h, conn, userID)

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go c.writePump()
	c.readPump(r.Context(), svc)
}

func (c *Client) readPump(ctx context.Context, svc *Service) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.WithError(err).WithFields(c.fields()).Debug("Websocket read failed")
			}
			return
		}
		c.handle(ctx, svc, env)
	}
}

type conversationRef struct {
	ConversationID uint `json:"conversation_id"`
}

type outgoingMessage struct {
	ConversationID uint   `json:"conversation_id"`
	Body           string `json:"body"`
}

func (c *Client) handle(ctx context.Context, svc *Service, env Envelope) {
	switch env.Event {
	case EventJoinConversation:
		var ref conversationRef
		if err := json.Unmarshal(env.Data, &ref); err != nil || ref.ConversationID == 0 {
			c.fail(apperr.BadRequest("conversationId is required"))
			return
		}
		if err := svc.Join(ctx, c.userID, ref.ConversationID); err != nil {
			c.fail(err)
			return
		}
		c.hub.sendToClient(c, EventJoined, ref)

	case EventNewMessage:
		var msg outgoingMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil || msg.ConversationID == 0 {
			c.fail(apperr.BadRequest("conversationId is required"))
			return
		}
		if _, err := svc.Send(ctx, c.userID, msg.ConversationID, msg.Body); err != nil {
			c.fail(err)
		}

	default:
		c.fail(apperr.BadRequest("unknown event %q", env.Event))
	}
}

func (c *Client) fail(err error) {
	c.hub.sendToClient(c, EventError, map[string]string{"message": apperr.PublicMessage(err)})
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
