// Package ws streams a conversation over a websocket: store events go out as
// they happen, and questions come in as frames.
package ws

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sync/atomic"
	"time"

	"homework-helper/backend/internal/conversation"
	"homework-helper/backend/pkg/errors"
	"homework-helper/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer; image frames carry base64 payloads
	maxMessageSize = 8 << 20
)

// Frame types
const (
	TypeHistory  = "history"
	TypeAppended = "appended"
	TypeCleared  = "cleared"
	TypeError    = "error"
	TypePong     = "pong"

	TypeText  = "text"
	TypeImage = "image"
	TypeClear = "clear"
	TypePing  = "ping"
)

// Message is one frame in either direction
type Message struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

type textContent struct {
	Text string `json:"text"`
}

type imageContent struct {
	ImageBase64 string `json:"imageBase64"`
	Text        string `json:"text"`
}

// Handler upgrades conversation streams
type Handler struct {
	registry *conversation.Registry
	log      *logger.Logger
	upgrader websocket.Upgrader
	active   atomic.Int64
}

// NewHandler creates a handler; allowedOrigins empty accepts any origin
func NewHandler(registry *conversation.Registry, log *logger.Logger, allowedOrigins []string) *Handler {
	if log == nil {
		log = logger.Discard()
	}
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}

	return &Handler{
		registry: registry,
		log:      log.WithComponent("ws"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin] || allowed["*"]
			},
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	}
}

// ActiveConnections returns the number of open streams
func (h *Handler) ActiveConnections() int64 {
	return h.active.Load()
}

// RegisterRoutes registers the stream route
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/conversations/:id", h.ServeConversation)
}

// ServeConversation streams conversation :id
func (h *Handler) ServeConversation(c *gin.Context) {
	id := c.Param("id")
	controller, release := h.registry.Acquire(id)

	ctx, cancel := context.WithCancel(context.Background())
	events, unsubscribe, err := controller.Subscribe(ctx)
	if err != nil {
		cancel()
		release()
		if stderrors.Is(err, conversation.ErrSubscribeUnsupported) {
			c.Error(errors.NewError(http.StatusNotImplemented, "STREAM_UNSUPPORTED", "This conversation store cannot stream updates"))
			return
		}
		c.Error(err)
		return
	}

	history, err := controller.Messages(c.Request.Context())
	if err != nil {
		unsubscribe()
		cancel()
		release()
		c.Error(err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		unsubscribe()
		cancel()
		release()
		h.log.Warn("Error upgrading connection", "conversation", id, "error", err.Error())
		return
	}

	client := &Client{
		conn:       conn,
		controller: controller,
		send:       make(chan []byte, 64),
		done:       make(chan struct{}),
		log:        h.log.WithUserID(id),
	}
	if history == nil {
		history = []conversation.Message{}
	}
	client.sendMessage(TypeHistory, gin.H{"messages": history, "busy": controller.Busy()})

	h.active.Add(1)
	client.log.Info("Conversation stream opened")

	go client.WritePump(events)
	go func() {
		client.ReadPump()
		unsubscribe()
		cancel()
		release()
		h.active.Add(-1)
		client.log.Info("Conversation stream closed")
	}()
}

// Client is one open stream
type Client struct {
	conn       *websocket.Conn
	controller *conversation.Controller
	send       chan []byte
	done       chan struct{}
	log        *logger.Logger
}

// ReadPump handles inbound frames until the peer goes away
func (c *Client) ReadPump() {
	defer func() {
		close(c.done)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("Unexpected close", "error", err.Error())
			}
			return
		}

		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			c.sendError("INVALID_FRAME", "Frames must be JSON objects")
			continue
		}

		// Answers take seconds; keep reading so pings and pongs still flow
		go c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message Message) {
	ctx := logger.NewContext(context.Background(), c.log)

	switch message.Type {
	case TypeText:
		var in textContent
		if err := json.Unmarshal(message.Content, &in); err != nil {
			c.sendError("VALIDATION_FAILED", "text frames carry {text}")
			return
		}
		_, err := c.controller.SubmitText(ctx, in.Text)
		c.reportSubmitError(err)

	case TypeImage:
		var in imageContent
		if err := json.Unmarshal(message.Content, &in); err != nil || in.ImageBase64 == "" {
			c.sendError("VALIDATION_FAILED", "image frames carry {imageBase64, text}")
			return
		}
		_, err := c.controller.SubmitImageText(ctx, in.ImageBase64, in.Text)
		c.reportSubmitError(err)

	case TypeClear:
		if err := c.controller.ClearConversation(ctx); err != nil {
			c.log.LogError(err, "Clear failed")
			c.sendError("INTERNAL_ERROR", "Could not clear the conversation")
		}

	case TypePing:
		c.sendMessage(TypePong, nil)

	default:
		c.sendError("UNKNOWN_TYPE", "Unknown frame type "+message.Type)
	}
}

func (c *Client) reportSubmitError(err error) {
	switch {
	case err == nil:
	case stderrors.Is(err, conversation.ErrBusy):
		c.sendError("BUSY", "A question is already being answered")
	default:
		c.log.LogError(err, "Submission failed")
		c.sendError("INTERNAL_ERROR", "Could not save the question")
	}
}

func (c *Client) sendMessage(messageType string, content any) {
	message := Message{Type: messageType}
	if content != nil {
		raw, err := json.Marshal(content)
		if err != nil {
			c.log.LogError(err, "Error marshaling frame content", "type", messageType)
			return
		}
		message.Content = raw
	}

	data, err := json.Marshal(message)
	if err != nil {
		c.log.LogError(err, "Error marshaling frame", "type", messageType)
		return
	}

	select {
	case c.send <- data:
	case <-c.done:
	}
}

func (c *Client) sendError(code, text string) {
	c.sendMessage(TypeError, map[string]string{"code": code, "message": text})
}

// WritePump forwards queued frames and store events, and keeps the connection alive
func (c *Client) WritePump(events <-chan conversation.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case ev, ok := <-events:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.writeEvent(ev); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Client) writeEvent(ev conversation.Event) error {
	message := Message{Type: string(ev.Type)}
	if ev.Message != nil {
		raw, err := json.Marshal(ev.Message)
		if err != nil {
			return err
		}
		message.Content = raw
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
