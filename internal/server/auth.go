package server

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/computeledger/internal/observability/context"
)

// AdminTokenRequired guards operator routes with the static admin token.
// With no token configured every admin request is rejected.
func (s *Server) AdminTokenRequired() gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(s.cfg.AdminToken))
	return func(c *gin.Context) {
		parts := strings.Fields(strings.TrimSpace(c.GetHeader("Authorization")))
		if len(expected) == 0 || len(parts) != 2 || parts[0] != "Bearer" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if subtle.ConstantTimeCompare([]byte(parts[1]), expected) != 1 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		ctx := obscontext.WithActor(c.Request.Context(), "admin", "api_token")
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
