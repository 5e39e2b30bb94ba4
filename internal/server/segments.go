package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	segmentdomain "github.com/pulsekit/pulse/internal/segment/domain"
	"github.com/pulsekit/pulse/pkg/db/pagination"
)

type segmentResponse struct {
	ID         string          `json:"id"`
	Key        string          `json:"key"`
	EntityKind string          `json:"entityKind"`
	Label      string          `json:"label"`
	Rule       json.RawMessage `json:"rule"`
	IsActive   bool            `json:"isActive"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

func toSegmentResponse(segment *segmentdomain.Segment) segmentResponse {
	return segmentResponse{
		ID:         segment.ID.String(),
		Key:        segment.Key,
		EntityKind: segment.EntityKind,
		Label:      segment.Label,
		Rule:       json.RawMessage(segment.Rule),
		IsActive:   segment.IsActive,
		CreatedAt:  segment.CreatedAt,
		UpdatedAt:  segment.UpdatedAt,
	}
}

func (s *Server) ListSegments(c *gin.Context) {
	segments, err := s.segmentSvc.List(c.Request.Context(), c.Query("entity_kind"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]segmentResponse, 0, len(segments))
	for i := range segments {
		items = append(items, toSegmentResponse(&segments[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) GetSegment(c *gin.Context) {
	segment, err := s.segmentSvc.GetByKey(c.Request.Context(), c.Param("key"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSegmentResponse(segment))
}

func (s *Server) CreateSegment(c *gin.Context) {
	var req segmentdomain.CreateSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	segment, err := s.segmentSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSegmentResponse(segment))
}

func (s *Server) UpdateSegment(c *gin.Context) {
	var req segmentdomain.UpdateSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	req.Key = c.Param("key")

	segment, err := s.segmentSvc.Update(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSegmentResponse(segment))
}

type evaluateSegmentRequest struct {
	EntityKind string `json:"entityKind"`
	EntityID   string `json:"entityId"`
}

func (s *Server) EvaluateSegment(c *gin.Context) {
	var req evaluateSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	evaluation, err := s.segmentSvc.Evaluate(c.Request.Context(), segmentdomain.EvaluateRequest{
		Key:        c.Param("key"),
		EntityKind: req.EntityKind,
		EntityID:   req.EntityID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, evaluation)
}

func (s *Server) SegmentMembers(c *gin.Context) {
	var page pagination.Page
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	members, err := s.segmentSvc.Members(c.Request.Context(), segmentdomain.MembersRequest{
		Key:        c.Param("key"),
		EntityKind: c.Query("entity_kind"),
		Page:       page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

type evaluateSegmentBatchRequest struct {
	EntityKind string   `json:"entityKind"`
	EntityIDs  []string `json:"entityIds"`
}

func (s *Server) EvaluateSegmentBatch(c *gin.Context) {
	var req evaluateSegmentBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	matched, err := s.segmentSvc.EvaluateBatch(c.Request.Context(), segmentdomain.EvaluateBatchRequest{
		Key:        c.Param("key"),
		EntityKind: req.EntityKind,
		EntityIDs:  req.EntityIDs,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"matched": matched})
}
