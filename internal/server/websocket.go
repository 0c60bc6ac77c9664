package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kode4food/caravan/topic"

	"github.com/maximilianalessandronmartin/taskquest/internal/hub"
	"github.com/maximilianalessandronmartin/taskquest/internal/service"
	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
	"github.com/maximilianalessandronmartin/taskquest/pkg/log"
	"github.com/maximilianalessandronmartin/taskquest/pkg/util"
)

type (
	// Client represents a WebSocket client connection for topic streaming
	Client struct {
		conn      *websocket.Conn
		consumer  topic.Consumer[*api.PushMessage]
		subscribe SubscribeFunc
		topics    util.Set[string]
		onClose   func(*Client)
	}

	// SubscribeFunc authorizes a topic for the connected user and returns
	// the initial state to send with the subscription, if any
	SubscribeFunc func(ctx context.Context, name string) (any, error)
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 512
	wsBufferSize       = 1024
	incomingBufferSize = 16
	subscribeTimeout   = 5 * time.Second
)

var (
	ErrUnknownMessage = errors.New("unknown message type")
	ErrUnknownTopic   = errors.New("unknown topic")
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  wsBufferSize,
	WriteBufferSize: wsBufferSize,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (s *Server) handleWebSocket(c *gin.Context) {
	user := actingUser(c)
	if user == "" {
		writeError(c, service.ErrUserRequired)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("WebSocket upgrade failed",
			log.UserID(user),
			log.Error(err))
		return
	}

	sub := func(ctx context.Context, name string) (any, error) {
		return s.authorizeTopic(ctx, user, name)
	}
	client := &Client{
		conn:      conn,
		consumer:  s.hub.NewConsumer(),
		subscribe: sub,
		topics:    util.Set[string]{},
		onClose:   s.unregisterWebSocket,
	}
	s.registerWebSocket(client)
	go client.run()
}

func (s *Server) authorizeTopic(
	ctx context.Context, user api.UserID, name string,
) (any, error) {
	if id, ok := hub.ParseTimerTopic(name); ok {
		if err := s.timers.CanAccess(ctx, id, user); err != nil {
			return nil, err
		}
		return s.timers.Snapshot(ctx, id)
	}
	if owner, ok := hub.ParseNotificationTopic(name); ok {
		if owner != user {
			return nil, fmt.Errorf("%w: %s", service.ErrAccessDenied, name)
		}
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTopic, name)
}

// Close terminates the connection. The client's run loop then exits
func (c *Client) Close() {
	_ = c.conn.Close()
}

func (c *Client) run() {
	defer func() {
		c.consumer.Close()
		_ = c.conn.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	incoming := make(chan []byte, incomingBufferSize)
	done := make(chan struct{})
	defer close(done)
	go c.readMessages(incoming, done)

	for {
		select {
		case message, ok := <-incoming:
			if !ok {
				return
			}
			if !c.handleMessage(message) {
				return
			}

		case msg, ok := <-c.consumer.Receive():
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.sendIfSubscribed(msg) {
				return
			}

		case <-ticker.C:
			if !c.sendPing() {
				return
			}
		}
	}
}

func (c *Client) readMessages(incoming chan<- []byte, done <-chan struct{}) {
	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			close(incoming)
			return
		}
		select {
		case incoming <- message:
		case <-done:
			return
		}
	}
}

func (c *Client) handleMessage(message []byte) bool {
	var sub api.SubscribeRequest
	if err := json.Unmarshal(message, &sub); err != nil {
		slog.Error("Failed to parse WebSocket message",
			log.Error(err))
		return c.sendError("", err)
	}

	switch sub.Type {
	case api.MessageTypeSubscribe:
		for _, name := range sub.Data.Topics {
			if !c.subscribeTopic(name) {
				return false
			}
		}
		return true
	case api.MessageTypeUnsubscribe:
		for _, name := range sub.Data.Topics {
			c.topics.Remove(name)
		}
		return true
	default:
		return c.sendError("",
			fmt.Errorf("%w: %q", ErrUnknownMessage, sub.Type))
	}
}

func (c *Client) subscribeTopic(name string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()

	state, err := c.subscribe(ctx, name)
	if err != nil {
		slog.Warn("WebSocket subscription rejected",
			log.Topic(name),
			log.Error(err))
		return c.sendError(name, err)
	}

	var data json.RawMessage
	if state != nil {
		data, err = json.Marshal(state)
		if err != nil {
			slog.Error("Failed to marshal state",
				log.Topic(name),
				log.Error(err))
			return c.sendError(name, err)
		}
	}

	c.topics.Add(name)
	return c.write(&api.WebSocketMessage{
		Type:  api.MessageTypeSubscribed,
		Topic: name,
		Data:  data,
	}, "subscribed")
}

func (c *Client) sendIfSubscribed(msg *api.PushMessage) bool {
	if !c.topics.Contains(msg.Topic) {
		return true
	}
	return c.write(&api.WebSocketMessage{
		Type:      api.MessageTypeMessage,
		Topic:     msg.Topic,
		Data:      msg.Data,
		Timestamp: msg.Timestamp,
	}, "message")
}

func (c *Client) sendError(name string, err error) bool {
	return c.write(&api.WebSocketMessage{
		Type:  api.MessageTypeError,
		Topic: name,
		Error: err.Error(),
	}, "error")
}

func (c *Client) write(msg *api.WebSocketMessage, kind string) bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(msg); err != nil {
		slog.Error("WebSocket write failed",
			slog.String("context", kind),
			log.Error(err))
		return false
	}
	return true
}

func (c *Client) sendPing() bool {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(websocket.PingMessage, nil)
	return err == nil
}
