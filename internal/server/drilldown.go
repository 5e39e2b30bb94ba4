package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	drilldowndomain "github.com/pulsekit/pulse/internal/drilldown/domain"
)

func (s *Server) ResolveDrilldown(c *gin.Context) {
	var req drilldowndomain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.drilldownSvc.Resolve(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
