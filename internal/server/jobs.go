package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/computeledger/internal/observability/context"
)

// RunJob triggers one scheduler job and waits for it to finish.
func (s *Server) RunJob(c *gin.Context) {
	if s.jobs == nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	name := strings.TrimSpace(c.Param("job"))
	ctx := obscontext.WithActor(c.Request.Context(), "admin", "job_trigger")
	if err := s.jobs.RunJob(ctx, name); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"job": name, "status": "completed"}})
}
