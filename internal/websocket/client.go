package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"time"

	"localchat-backend/internal/delivery"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 2048
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Client bridges a WebSocket connection with the hub.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   uuid.UUID
	username string
}

// NewClient constructs a Client for the given hub connection.
func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, username string) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, 256),
		userID:   userID,
		username: username,
	}
}

func (c *Client) UserID() uuid.UUID {
	return c.userID
}

// Deliver places a delivery event onto the outbound queue. Events are dropped
// when the queue is full rather than blocking the hub.
func (c *Client) Deliver(event delivery.Event) {
	raw, err := json.Marshal(event)
	if err != nil {
		log.Printf("Client (User: %s) Deliver: Error marshalling event: %v", c.userID, err)
		return
	}
	select {
	case c.send <- raw:
	default:
		log.Printf("Client (User: %s) Deliver: Send channel full. Dropping event of type %s.", c.userID, event.Type)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		close(c.send)
		c.conn.Close()
		log.Printf("Client %s (User: %s) readPump: Unregistered and connection closed.", c.conn.RemoteAddr(), c.userID)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Client %s (User: %s) readPump error: %v", c.conn.RemoteAddr(), c.userID, err)
			} else {
				log.Printf("Client %s (User: %s) readPump: Connection closed: %v", c.conn.RemoteAddr(), c.userID, err)
			}
			break
		}

		if messageType != websocket.TextMessage {
			log.Printf("Client %s (User: %s) readPump: Received non-text message type: %d", c.conn.RemoteAddr(), c.userID, messageType)
			continue
		}

		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		c.handleClientMessage(message)
	}
}

func (c *Client) handleClientMessage(raw []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Printf("Client (User: %s): Error unmarshalling message: %v. Raw: %s", c.userID, err, string(raw))
		c.sendError("Invalid message format")
		return
	}

	if msg.Payload.ChatID == uuid.Nil {
		c.sendError("chatId is required")
		return
	}

	switch msg.Type {
	case ClientTypeJoinChat:
		c.hub.JoinChat(c, msg.Payload.ChatID)
	case ClientTypeLeaveChat:
		c.hub.LeaveChat(c, msg.Payload.ChatID)
	case ClientTypeTypingStart, ClientTypeTypingStop:
		c.hub.RelayTyping(context.Background(), msg.Type, TypingPayload{
			ChatID:   msg.Payload.ChatID,
			UserID:   c.userID,
			Username: c.username,
		})
	default:
		log.Printf("Client (User: %s): Unknown message type '%s'", c.userID, msg.Type)
		c.sendError("Unknown message type")
	}
}

func (c *Client) sendError(message string) {
	event, err := delivery.NewEvent(ClientTypeError, ErrorPayload{Message: message})
	if err != nil {
		return
	}
	c.Deliver(event)
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		log.Printf("Client (User: %s) writePump: Ticker stopped and connection closed.", c.userID)
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				log.Printf("Client (User: %s) writePump: Error getting next writer: %v", c.userID, err)
				return
			}
			if _, err = w.Write(message); err != nil {
				log.Printf("Client (User: %s) writePump: Error writing message: %v", c.userID, err)
			}
			if err := w.Close(); err != nil {
				log.Printf("Client (User: %s) writePump: Error closing writer: %v", c.userID, err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("Client (User: %s) writePump: Error sending ping: %v", c.userID, err)
				return
			}
		}
	}
}
