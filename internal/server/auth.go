package server

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// authRequired enforces the configured bearer token. An empty configured
// token leaves the API open. The token is accepted from the Authorization
// header or, for websocket clients that cannot set headers, from the token
// query parameter.
func (r *Router) authRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		want := r.cfg.Current().Web.AuthToken
		if want == "" {
			c.Next()
			return
		}

		got := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if got == "" || got == c.GetHeader("Authorization") {
			got = c.Query("token")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			fail(c, http.StatusUnauthorized, "Unauthorized")
			c.Abort()
			return
		}
		c.Next()
	}
}
