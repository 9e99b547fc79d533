package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/restorix/backend/internal/apperrors"
	"github.com/restorix/backend/internal/services"
)

const (
	userIDKey    = "userID"
	userEmailKey = "userEmail"
)

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*services.TokenClaims, error)
}

// AuthMiddleware requires a valid bearer access token and stores the caller's
// identity on the context.
func AuthMiddleware(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") || strings.TrimSpace(authHeader[len("Bearer "):]) == "" {
			abortWithError(c, apperrors.TokenInvalid("No token provided"))
			return
		}

		claims, err := verifier.VerifyAccessToken(strings.TrimSpace(authHeader[len("Bearer "):]))
		if err != nil {
			appErr, ok := apperrors.As(err)
			if !ok {
				appErr = apperrors.TokenInvalid("Invalid token")
			}
			abortWithError(c, appErr)
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set(userEmailKey, claims.Email)
		c.Next()
	}
}

// UserID returns the authenticated user's id, or "" outside AuthMiddleware.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}

func abortWithError(c *gin.Context, err *apperrors.Error) {
	c.AbortWithStatusJSON(err.Status(), gin.H{
		"error": gin.H{
			"code":    err.Code,
			"message": err.Message,
		},
	})
}
