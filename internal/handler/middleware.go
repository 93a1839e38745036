package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/wearable-sync/internal/dto"
	"github.com/prperemyshlev/wearable-sync/internal/utils"
)

const (
	subjectKey = "subject"
	claimsKey  = "claims"
)

// TokenValidator validates bearer tokens issued by the platform identity service
type TokenValidator interface {
	ValidateToken(token string) (*utils.TokenClaims, error)
}

// AuthMiddleware validates JWT token and adds the subject to context
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Authorization header is required",
			})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>"
		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Invalid authorization header format",
			})
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "Unauthorized",
				Message: "Invalid or expired token",
			})
			c.Abort()
			return
		}

		c.Set(subjectKey, claims.Subject)
		c.Set(claimsKey, claims)

		c.Next()
	}
}
