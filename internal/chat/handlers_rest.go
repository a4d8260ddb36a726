package chat

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"localchat-backend/internal/apperr"
	"localchat-backend/internal/geo"
	"localchat-backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RestHandler exposes the chat subsystem over REST.
type RestHandler struct {
	service *Service
}

func NewRestHandler(service *Service) *RestHandler {
	return &RestHandler{service: service}
}

// RegisterRoutes mounts the chat routes on the given (authenticated) group.
func (h *RestHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/chat/list/:userId", h.ListChats)
	rg.POST("/chat/create", h.CreateChat)
	rg.POST("/chat/:chatId/messages", h.PostMessage)
	rg.GET("/chat/:chatId/messages", h.GetMessages)
	rg.GET("/chat/:chatId/receipts", h.GetReadReceipts)
	rg.POST("/chat/local-groups/join", h.JoinLocalGroup)
	rg.POST("/chat/read", h.PostReadReceipt)
	rg.DELETE("/chat/:chatId/remove-member", h.RemoveMember)
	rg.GET("/alerts", h.ListAlerts)
}

func respondError(c *gin.Context, op string, err error) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		log.Printf("%s: %v", op, err)
		c.JSON(status, gin.H{"success": false, "error": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// ListChats handles GET /chat/list/:userId.
func (h *RestHandler) ListChats(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid user id"})
		return
	}

	summaries, err := h.service.ListChats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, "ListChats", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": summaries})
}

// CreateChat handles POST /chat/create. Returns 201 on creation and 200 with
// a distinguishable "already exists" message on an idempotent direct-chat hit.
func (h *RestHandler) CreateChat(c *gin.Context) {
	var req models.CreateChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request data", "details": err.Error()})
		return
	}

	chat, created, err := h.service.CreateChat(c.Request.Context(), req.UserID, req.ParticipantIDs, req.IsGroup, req.GroupName)
	if err != nil {
		respondError(c, "CreateChat", err)
		return
	}

	if !created {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Chat already exists", "chat_id": chat.ID})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "chat_id": chat.ID, "chat": chat})
}

// PostMessage handles POST /chat/:chatId/messages.
func (h *RestHandler) PostMessage(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid chat id"})
		return
	}

	var req models.CreateMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request data", "details": err.Error()})
		return
	}

	message, err := h.service.SendMessage(c.Request.Context(), chatID, req.SenderID, contentString(req.Content), req.MessageType)
	if err != nil {
		respondError(c, "PostMessage", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message_id": message.ID})
}

// contentString unwraps a JSON string content, leaving structured payloads
// (location objects) as their raw JSON text.
func contentString(raw []byte) string {
	if len(raw) >= 2 && raw[0] == '"' && raw[len(raw)-1] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// GetMessages handles GET /chat/:chatId/messages?limit&offset.
func (h *RestHandler) GetMessages(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid chat id"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	messages, err := h.service.ListMessages(c.Request.Context(), chatID, limit, offset)
	if err != nil {
		respondError(c, "GetMessages", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": messages})
}

// GetReadReceipts handles GET /chat/:chatId/receipts.
func (h *RestHandler) GetReadReceipts(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid chat id"})
		return
	}

	receipts, err := h.service.ListReadReceipts(c.Request.Context(), chatID)
	if err != nil {
		respondError(c, "GetReadReceipts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": receipts})
}

// JoinLocalGroup handles POST /chat/local-groups/join. Returns 201 when a new
// group was created and 200 when the user joined an existing one.
func (h *RestHandler) JoinLocalGroup(c *gin.Context) {
	var req models.JoinLocalGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request data", "details": err.Error()})
		return
	}

	chat, created, err := h.service.JoinOrCreateLocalGroup(c.Request.Context(), req.UserID, geo.Point{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
	})
	if err != nil {
		respondError(c, "JoinLocalGroup", err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"success": true, "chat_id": chat.ID})
}

// PostReadReceipt handles POST /chat/read.
func (h *RestHandler) PostReadReceipt(c *gin.Context) {
	var req models.ReadReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request data", "details": err.Error()})
		return
	}

	if _, err := h.service.RecordReadReceipt(c.Request.Context(), req.ChatID, req.UserID, req.MessageID); err != nil {
		respondError(c, "PostReadReceipt", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RemoveMember handles DELETE /chat/:chatId/remove-member?user_id&requested_by.
// requested_by defaults to the authenticated caller.
func (h *RestHandler) RemoveMember(c *gin.Context) {
	chatID, err := uuid.Parse(c.Param("chatId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid chat id"})
		return
	}
	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid user_id"})
		return
	}

	requestedByStr := c.Query("requested_by")
	if requestedByStr == "" {
		if fromToken, ok := c.Get("userID"); ok {
			requestedByStr, _ = fromToken.(string)
		}
	}
	requestedBy, err := uuid.Parse(requestedByStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid requested_by"})
		return
	}

	if err := h.service.RemoveMember(c.Request.Context(), chatID, userID, requestedBy); err != nil {
		respondError(c, "RemoveMember", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListAlerts handles GET /alerts for the authenticated user.
func (h *RestHandler) ListAlerts(c *gin.Context) {
	userIDString, _ := c.Get("userID")
	userID, err := uuid.Parse(userIDString.(string))
	if err != nil {
		log.Printf("ListAlerts: Invalid userID from token: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "invalid user session"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	alerts, err := h.service.ListAlerts(c.Request.Context(), userID, limit)
	if err != nil {
		respondError(c, "ListAlerts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": alerts})
}
