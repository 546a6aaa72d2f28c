package middleware

import "github.com/gin-gonic/gin"

// NoStore marks responses as uncacheable. Session state and grades change
// between requests and must never be served from an intermediary cache.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
