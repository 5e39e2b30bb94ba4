package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	datasourcedomain "github.com/pulsekit/pulse/internal/datasource/domain"
)

type dataSourceResponse struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func toDataSourceResponse(ds *datasourcedomain.DataSource) dataSourceResponse {
	return dataSourceResponse{
		ID:        ds.ID.String(),
		Key:       ds.Key,
		Name:      ds.Name,
		CreatedAt: ds.CreatedAt,
		UpdatedAt: ds.UpdatedAt,
	}
}

type syncRunResponse struct {
	ID           string     `json:"id"`
	DataSourceID string     `json:"dataSourceId"`
	ExternalID   string     `json:"externalId"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"startedAt"`
	FinishedAt   *time.Time `json:"finishedAt,omitempty"`
}

func toSyncRunResponse(run *datasourcedomain.SyncRun) syncRunResponse {
	return syncRunResponse{
		ID:           run.ID.String(),
		DataSourceID: run.DataSourceID.String(),
		ExternalID:   run.ExternalID,
		Status:       run.Status,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
	}
}

func (s *Server) ListDataSources(c *gin.Context) {
	sources, err := s.dataSourceSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items := make([]dataSourceResponse, 0, len(sources))
	for i := range sources {
		items = append(items, toDataSourceResponse(&sources[i]))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (s *Server) GetDataSource(c *gin.Context) {
	ds, err := s.dataSourceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toDataSourceResponse(ds))
}

func (s *Server) CreateDataSource(c *gin.Context) {
	var req datasourcedomain.CreateDataSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	ds, err := s.dataSourceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toDataSourceResponse(ds))
}

func (s *Server) DeleteDataSource(c *gin.Context) {
	if err := s.dataSourceSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) StartSyncRun(c *gin.Context) {
	run, err := s.dataSourceSvc.StartSyncRun(c.Request.Context(), datasourcedomain.StartSyncRunRequest{
		DataSourceID: c.Param("id"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSyncRunResponse(run))
}

type finishSyncRunRequest struct {
	Status string `json:"status"`
}

func (s *Server) FinishSyncRun(c *gin.Context) {
	var req finishSyncRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	run, err := s.dataSourceSvc.FinishSyncRun(c.Request.Context(), datasourcedomain.FinishSyncRunRequest{
		SyncRunID: c.Param("syncRunId"),
		Status:    req.Status,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toSyncRunResponse(run))
}
