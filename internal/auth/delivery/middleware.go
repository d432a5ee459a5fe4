package delivery

import (
	"net/http"
	"strings"

	"github.com/landovsky/gmail-assistant-sub002/internal/auth/usecase"
	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"

	"github.com/gin-gonic/gin"
)

// UserKey is the gin context key of the authenticated user.
const UserKey = "user"

func AuthMiddleware(authUsecase usecase.AuthUsecase) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header format"})
			c.Abort()
			return
		}

		user, err := authUsecase.ValidateToken(c.Request.Context(), parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			c.Abort()
			return
		}

		c.Set(UserKey, user)
		c.Set("userID", user.ID)
		c.Next()
	}
}

// CurrentUser returns the user set by AuthMiddleware.
func CurrentUser(c *gin.Context) *userdomain.User {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*userdomain.User)
	return user
}
