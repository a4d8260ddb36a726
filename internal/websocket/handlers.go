package websocket

import (
	"errors"
	"log"
	"net/http"

	"localchat-backend/internal/store"
	"localchat-backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all connections by default for development.
		return true
	},
}

// WSHandler handles WebSocket connection requests.
type WSHandler struct {
	hub       *Hub
	userStore store.UserStore
}

func NewWSHandler(hub *Hub, userStore store.UserStore) *WSHandler {
	return &WSHandler{hub: hub, userStore: userStore}
}

// HandleWebSocketConnection upgrades HTTP GET requests to WebSocket
// connections. It expects a JWT token as a query parameter
// (e.g., /ws?token=...); the connection is bound to the token's user topic
// for its lifetime.
func (h *WSHandler) HandleWebSocketConnection(c *gin.Context) {
	tokenString := c.Query("token")
	if tokenString == "" {
		log.Println("WS Handler: Missing token in query parameter")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	claims, err := utils.ValidateJWT(tokenString)
	if err != nil {
		log.Printf("WS Handler: Invalid token: %v", err)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		log.Printf("WS Handler: Invalid UserID in token claims: %v", err)
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	user, err := h.userStore.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		log.Printf("WS Handler: Failed to load user %s: %v", userID, err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WS Handler: Failed to upgrade connection for user %s: %v", userID, err)
		return
	}
	log.Printf("WS Handler: Connection upgraded for user %s from %s", userID, conn.RemoteAddr())

	client := NewClient(h.hub, conn, userID, user.Username)
	h.hub.Register(client)

	go client.writePump()
	go client.readPump()
}
