package user

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"localchat-backend/internal/models"
	"localchat-backend/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// UserHandler exposes user-related HTTP handlers.
type UserHandler struct {
	userStore store.UserStore
}

// NewUserHandler creates a UserHandler.
func NewUserHandler(userStore store.UserStore) *UserHandler {
	return &UserHandler{userStore: userStore}
}

// GetUserByID returns the public profile for a user.
func (h *UserHandler) GetUserByID(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		log.Printf("GetUserByID: Invalid user ID format: %s, error: %v", c.Param("id"), err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID format"})
		return
	}

	user, err := h.userStore.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		log.Printf("GetUserByID: Failed to get user by ID %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve user information"})
		return
	}

	c.JSON(http.StatusOK, user.ToPublicUser())
}

// SearchUsers performs a minimal prefix search over users.
func (h *UserHandler) SearchUsers(c *gin.Context) {
	searchQuery := c.Query("search")
	if searchQuery == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Search query parameter is required"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 || limit > 50 {
		limit = 20
	}

	users, err := h.userStore.SearchUsers(c.Request.Context(), searchQuery, limit)
	if err != nil {
		log.Printf("SearchUsers: Failed to search users with query %q: %v", searchQuery, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search users"})
		return
	}

	results := make([]*models.PublicUser, 0, len(users))
	for _, u := range users {
		results = append(results, u.ToPublicUser())
	}
	c.JSON(http.StatusOK, results)
}
