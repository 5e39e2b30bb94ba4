package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tablebucketdomain "github.com/pulsekit/pulse/internal/tablebucket/domain"
)

type tableBucketResponse struct {
	ID         string    `json:"id"`
	TableID    string    `json:"tableId"`
	ColumnKey  string    `json:"columnKey"`
	EntityKind string    `json:"entityKind"`
	SegmentKey string    `json:"segmentKey"`
	Label      string    `json:"label"`
	SortOrder  int       `json:"sortOrder"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toTableBucketResponse(bucket *tablebucketdomain.TableBucket) tableBucketResponse {
	return tableBucketResponse{
		ID:         bucket.ID.String(),
		TableID:    bucket.TableID,
		ColumnKey:  bucket.ColumnKey,
		EntityKind: bucket.EntityKind,
		SegmentKey: bucket.SegmentKey,
		Label:      bucket.Label,
		SortOrder:  bucket.SortOrder,
		CreatedAt:  bucket.CreatedAt,
		UpdatedAt:  bucket.UpdatedAt,
	}
}

func (s *Server) ListTableBuckets(c *gin.Context) {
	buckets, err := s.tableBucketSvc.ListColumn(c.Request.Context(), c.Query("table_id"), c.Query("column_key"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]tableBucketResponse, 0, len(buckets))
	for i := range buckets {
		items = append(items, toTableBucketResponse(&buckets[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) CreateTableBucket(c *gin.Context) {
	var req tablebucketdomain.CreateBucketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	bucket, err := s.tableBucketSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toTableBucketResponse(bucket))
}

func (s *Server) DeleteTableBucket(c *gin.Context) {
	if err := s.tableBucketSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) AssignTableBuckets(c *gin.Context) {
	var req tablebucketdomain.AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	resp, err := s.tableBucketSvc.Assign(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
