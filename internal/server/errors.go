package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pulsekit/pulse/internal/authorization"
	datasourcedomain "github.com/pulsekit/pulse/internal/datasource/domain"
	directorydomain "github.com/pulsekit/pulse/internal/directory/domain"
	drilldowndomain "github.com/pulsekit/pulse/internal/drilldown/domain"
	pointdomain "github.com/pulsekit/pulse/internal/point/domain"
	querydomain "github.com/pulsekit/pulse/internal/query/domain"
	segmentdomain "github.com/pulsekit/pulse/internal/segment/domain"
	tablebucketdomain "github.com/pulsekit/pulse/internal/tablebucket/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    validationErrorCode(err),
			Message: "validation error",
		}
	case errors.Is(err, ErrUnauthorized), errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, segmentdomain.ErrKeyExists),
		errors.Is(err, datasourcedomain.ErrKeyExists),
		errors.Is(err, tablebucketdomain.ErrSlotTaken):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "rate limited",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, authorization.ErrInvalidObject),
		errors.Is(err, authorization.ErrInvalidAction):
		return true
	case errors.Is(err, pointdomain.ErrEmptyBatch),
		errors.Is(err, pointdomain.ErrInvalidSyncRun),
		errors.Is(err, pointdomain.ErrInvalidDataSource):
		return true
	case errors.Is(err, querydomain.ErrInvalidMetricKey),
		errors.Is(err, querydomain.ErrInvalidAgg),
		errors.Is(err, querydomain.ErrInvalidBucket),
		errors.Is(err, querydomain.ErrInvalidGranularity),
		errors.Is(err, querydomain.ErrMissingRange),
		errors.Is(err, querydomain.ErrInvalidRange),
		errors.Is(err, querydomain.ErrInvalidDimensionKey),
		errors.Is(err, querydomain.ErrTooManyEntityIDs),
		errors.Is(err, querydomain.ErrTooManyQueries):
		return true
	case errors.Is(err, drilldowndomain.ErrMissingFilter),
		errors.Is(err, drilldowndomain.ErrAmbiguousFilter),
		errors.Is(err, drilldowndomain.ErrMissingRowContext),
		errors.Is(err, drilldowndomain.ErrMissingBucket),
		errors.Is(err, drilldowndomain.ErrMissingEntityID),
		errors.Is(err, drilldowndomain.ErrMissingDimension):
		return true
	case errors.Is(err, segmentdomain.ErrInvalidKey),
		errors.Is(err, segmentdomain.ErrInvalidLabel),
		errors.Is(err, segmentdomain.ErrInvalidEntityKind),
		errors.Is(err, segmentdomain.ErrInvalidEntityID),
		errors.Is(err, segmentdomain.ErrInvalidRule),
		errors.Is(err, segmentdomain.ErrUnknownRuleKind),
		errors.Is(err, segmentdomain.ErrEntityKindMismatch),
		errors.Is(err, segmentdomain.ErrUnsupportedEntityKind),
		errors.Is(err, segmentdomain.ErrTooManyEntityIDs):
		return true
	case errors.Is(err, tablebucketdomain.ErrInvalidTableID),
		errors.Is(err, tablebucketdomain.ErrInvalidColumnKey),
		errors.Is(err, tablebucketdomain.ErrInvalidLabel),
		errors.Is(err, tablebucketdomain.ErrInvalidSegmentKey),
		errors.Is(err, tablebucketdomain.ErrInvalidEntityKind),
		errors.Is(err, tablebucketdomain.ErrTooManyEntityIDs):
		return true
	case errors.Is(err, datasourcedomain.ErrInvalidKey),
		errors.Is(err, datasourcedomain.ErrInvalidName),
		errors.Is(err, datasourcedomain.ErrInvalidStatus),
		errors.Is(err, datasourcedomain.ErrInvalidDataSource):
		return true
	case errors.Is(err, directorydomain.ErrInvalidAttribute),
		errors.Is(err, directorydomain.ErrInvalidAttributeValue):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, segmentdomain.ErrNotFound),
		errors.Is(err, tablebucketdomain.ErrNotFound),
		errors.Is(err, datasourcedomain.ErrNotFound),
		errors.Is(err, datasourcedomain.ErrSyncRunNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	code := err.Error()
	if idx := strings.IndexByte(code, ':'); idx > 0 {
		code = code[:idx]
	}
	return code
}
