package domain

import (
	"context"
	"errors"
)

type CreateDataSourceRequest struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type StartSyncRunRequest struct {
	DataSourceID string `json:"dataSourceId"`
}

type FinishSyncRunRequest struct {
	SyncRunID string `json:"syncRunId"`
	Status    string `json:"status"`
}

type Service interface {
	Create(context.Context, CreateDataSourceRequest) (*DataSource, error)
	List(context.Context) ([]DataSource, error)
	GetByID(context.Context, string) (*DataSource, error)
	// Delete removes a data source and cascades to its sync runs and points.
	Delete(context.Context, string) error

	StartSyncRun(context.Context, StartSyncRunRequest) (*SyncRun, error)
	FinishSyncRun(context.Context, FinishSyncRunRequest) (*SyncRun, error)
}

var (
	ErrNotFound          = errors.New("data_source_not_found")
	ErrSyncRunNotFound   = errors.New("sync_run_not_found")
	ErrInvalidKey        = errors.New("invalid_key")
	ErrInvalidName       = errors.New("invalid_name")
	ErrInvalidStatus     = errors.New("invalid_status")
	ErrInvalidDataSource = errors.New("invalid_data_source")
	ErrKeyExists         = errors.New("data_source_key_exists")
)
