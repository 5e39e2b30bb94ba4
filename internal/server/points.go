package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	pointdomain "github.com/pulsekit/pulse/internal/point/domain"
)

func (s *Server) IngestPoints(c *gin.Context) {
	var req pointdomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.pointSvc.Upsert(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
