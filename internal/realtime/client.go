package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/eldtechnologies/tarschat/internal/models"
)

var errUnknownFrame = errors.New("unknown frame type")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 4096
	sendBufferSize = 256
	actionTimeout  = 5 * time.Second
)

// Inbound frame types.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameTyping      = "typing"
	FrameHeartbeat   = "heartbeat"
)

// Session performs the chat actions a connected user may trigger over the
// socket. Implementations enforce participation.
type Session interface {
	CanSubscribe(ctx context.Context, conversationID uuid.UUID) error
	Typing(ctx context.Context, conversationID uuid.UUID, active bool) error
	Heartbeat(ctx context.Context) error
	// Disconnected is called once the user's last connection closes.
	Disconnected(ctx context.Context)
}

// Frame is a message sent by a client.
type Frame struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversation_id,omitempty"`
	Active         *bool     `json:"active,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
	Frame string `json:"frame,omitempty"`
}

// Client is one websocket connection.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	userID  uuid.UUID
	session Session
	topics  map[string]struct{} // guarded by hub.mu
}

// NewClient wraps conn for userID. Register it with the hub and start both
// pumps to serve it.
func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, session Session) *Client {
	return &Client{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		userID:  userID,
		session: session,
		topics:  make(map[string]struct{}),
	}
}

// Serve registers the client and runs its pumps until the connection
// closes.
func (c *Client) Serve() {
	c.hub.Register(c)
	go c.WritePump()
	c.ReadPump()
}

// ReadPump reads frames until the connection fails.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug().Err(err).Str("user_id", c.userID.String()).Msg("websocket read error")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.reply(errorFrame{Type: "error", Error: "invalid frame"})
			continue
		}
		if err := c.handle(frame); err != nil {
			c.reply(errorFrame{Type: "error", Error: err.Error(), Frame: frame.Type})
		}
	}
}

func (c *Client) handle(frame Frame) error {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()

	switch frame.Type {
	case FrameSubscribe:
		if err := c.session.CanSubscribe(ctx, frame.ConversationID); err != nil {
			return err
		}
		c.hub.Subscribe(c, models.ConversationTopic(frame.ConversationID))
	case FrameUnsubscribe:
		c.hub.Unsubscribe(c, models.ConversationTopic(frame.ConversationID))
	case FrameTyping:
		active := frame.Active == nil || *frame.Active
		return c.session.Typing(ctx, frame.ConversationID, active)
	case FrameHeartbeat:
		return c.session.Heartbeat(ctx)
	default:
		return errUnknownFrame
	}
	return nil
}

// reply queues a frame for this client only.
func (c *Client) reply(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// WritePump writes queued frames and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
