package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exam-proctor/internal/response"
	"github.com/stemsi/exam-proctor/internal/service"
)

// ContextKeyClaims is the Gin context key for JWT claims.
const ContextKeyClaims = "claims"

// TokenValidator is satisfied by *service.AuthService.
type TokenValidator interface {
	ValidateToken(tokenStr string) (*service.Claims, error)
}

// RequireSessionJWT validates the session token from the Authorization header
// and checks that it was issued for the session in the :id path parameter.
func RequireSessionJWT(auth TokenValidator) gin.HandlerFunc {
	return requireSession(auth, bearerToken)
}

// RequireSessionWSAuth is RequireSessionJWT for WebSocket upgrades, which
// cannot set headers from the browser: the token comes from ?token=.
func RequireSessionWSAuth(auth TokenValidator) gin.HandlerFunc {
	return requireSession(auth, func(c *gin.Context) string {
		if t := c.Query("token"); t != "" {
			return t
		}
		return bearerToken(c)
	})
}

func requireSession(auth TokenValidator, extract func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extract(c)
		if tokenStr == "" {
			response.AbortFail(c, response.ErrTokenRequired)
			return
		}

		claims, err := auth.ValidateToken(tokenStr)
		if err != nil {
			if errors.Is(err, service.ErrTokenExpired) {
				response.AbortFail(c, response.ErrTokenExpired)
				return
			}
			response.AbortFail(c, response.ErrTokenInvalid)
			return
		}

		if raw := c.Param("id"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.AbortFail(c, response.ErrInvalidID)
				return
			}
			if id != claims.SessionID {
				response.AbortFail(c, response.ErrForbidden)
				return
			}
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, _ := val.(*service.Claims)
	return claims
}

func bearerToken(c *gin.Context) string {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
