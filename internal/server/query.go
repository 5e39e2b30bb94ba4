package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	querydomain "github.com/pulsekit/pulse/internal/query/domain"
)

func (s *Server) RunQuery(c *gin.Context) {
	var req querydomain.Query
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.querySvc.Run(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type batchQueryRequest struct {
	Queries []querydomain.Query `json:"queries"`
}

func (s *Server) RunQueryBatch(c *gin.Context) {
	var req batchQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	results, err := s.querySvc.RunBatch(c.Request.Context(), req.Queries)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"results": results})
}
