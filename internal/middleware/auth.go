package middleware

import (
	"strings"

	"localchat-backend/internal/apperr"
	"localchat-backend/internal/utils"

	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

// AuthMiddleware validates the bearer token and stores the caller's user id
// string in the request context under "userID".
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := authenticate(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": err.Error()})
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}

func authenticate(header string) (*utils.Claims, error) {
	if header == "" {
		return nil, apperr.Unauthorizedf("authorization header is not provided")
	}

	fields := strings.Fields(header)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "bearer") {
		return nil, apperr.Unauthorizedf("authorization header must be of the form 'Bearer <token>'")
	}

	claims, err := utils.ValidateJWT(fields[1])
	if err != nil {
		return nil, apperr.Unauthorizedf("invalid or expired token: %v", err)
	}
	return claims, nil
}
