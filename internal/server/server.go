package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pulsekit/pulse/internal/authorization"
	"github.com/pulsekit/pulse/internal/config"
	"github.com/pulsekit/pulse/internal/datasource"
	datasourcedomain "github.com/pulsekit/pulse/internal/datasource/domain"
	"github.com/pulsekit/pulse/internal/directory"
	"github.com/pulsekit/pulse/internal/drilldown"
	drilldowndomain "github.com/pulsekit/pulse/internal/drilldown/domain"
	"github.com/pulsekit/pulse/internal/point"
	pointdomain "github.com/pulsekit/pulse/internal/point/domain"
	"github.com/pulsekit/pulse/internal/query"
	querydomain "github.com/pulsekit/pulse/internal/query/domain"
	"github.com/pulsekit/pulse/internal/ratelimit"
	"github.com/pulsekit/pulse/internal/segment"
	segmentdomain "github.com/pulsekit/pulse/internal/segment/domain"
	"github.com/pulsekit/pulse/internal/tablebucket"
	tablebucketdomain "github.com/pulsekit/pulse/internal/tablebucket/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	datasource.Module,
	directory.Module,
	point.Module,
	query.Module,
	drilldown.Module,
	segment.Module,
	tablebucket.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(log *zap.Logger) *gin.Engine {
	return NewEngine(log)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	authzSvc       authorization.Service
	pointSvc       pointdomain.Service
	querySvc       querydomain.Service
	drilldownSvc   drilldowndomain.Service
	segmentSvc     segmentdomain.Service
	tableBucketSvc tablebucketdomain.Service
	dataSourceSvc  datasourcedomain.Service
	ingestLimiter  *ratelimit.IngestLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	AuthzSvc       authorization.Service
	PointSvc       pointdomain.Service
	QuerySvc       querydomain.Service
	DrilldownSvc   drilldowndomain.Service
	SegmentSvc     segmentdomain.Service
	TableBucketSvc tablebucketdomain.Service
	DataSourceSvc  datasourcedomain.Service
	IngestLimiter  *ratelimit.IngestLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		authzSvc:       p.AuthzSvc,
		pointSvc:       p.PointSvc,
		querySvc:       p.QuerySvc,
		drilldownSvc:   p.DrilldownSvc,
		segmentSvc:     p.SegmentSvc,
		tableBucketSvc: p.TableBucketSvc,
		dataSourceSvc:  p.DataSourceSvc,
		ingestLimiter:  p.IngestLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.POST("/points",
		s.authorize(authorization.ObjectPoint, authorization.ActionIngest),
		s.IngestRateLimit(),
		s.IngestPoints,
	)

	api.POST("/query", s.authorize(authorization.ObjectQuery, authorization.ActionRun), s.RunQuery)
	api.POST("/query/batch", s.authorize(authorization.ObjectQuery, authorization.ActionRun), s.RunQueryBatch)
	api.POST("/drilldown", s.authorize(authorization.ObjectQuery, authorization.ActionRun), s.ResolveDrilldown)

	api.POST("/segments/:key/evaluate", s.authorize(authorization.ObjectSegment, authorization.ActionView), s.EvaluateSegment)
	api.GET("/segments/:key/members", s.authorize(authorization.ObjectSegment, authorization.ActionView), s.SegmentMembers)
	api.POST("/segments/:key/evaluate_batch", s.authorize(authorization.ObjectSegment, authorization.ActionView), s.EvaluateSegmentBatch)

	api.POST("/table_buckets/evaluate", s.authorize(authorization.ObjectTableBucket, authorization.ActionView), s.AssignTableBuckets)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")

	segments := admin.Group("/segments")
	segments.GET("", s.authorize(authorization.ObjectSegment, authorization.ActionView), s.ListSegments)
	segments.POST("", s.authorize(authorization.ObjectSegment, authorization.ActionCreate), s.CreateSegment)
	segments.GET("/:key", s.authorize(authorization.ObjectSegment, authorization.ActionView), s.GetSegment)
	segments.PATCH("/:key", s.authorize(authorization.ObjectSegment, authorization.ActionUpdate), s.UpdateSegment)

	buckets := admin.Group("/table_buckets")
	buckets.GET("", s.authorize(authorization.ObjectTableBucket, authorization.ActionView), s.ListTableBuckets)
	buckets.POST("", s.authorize(authorization.ObjectTableBucket, authorization.ActionCreate), s.CreateTableBucket)
	buckets.DELETE("/:id", s.authorize(authorization.ObjectTableBucket, authorization.ActionDelete), s.DeleteTableBucket)

	sources := admin.Group("/data_sources")
	sources.GET("", s.authorize(authorization.ObjectDataSource, authorization.ActionView), s.ListDataSources)
	sources.POST("", s.authorize(authorization.ObjectDataSource, authorization.ActionCreate), s.CreateDataSource)
	sources.GET("/:id", s.authorize(authorization.ObjectDataSource, authorization.ActionView), s.GetDataSource)
	sources.DELETE("/:id", s.authorize(authorization.ObjectDataSource, authorization.ActionDelete), s.DeleteDataSource)
	sources.POST("/:id/sync_runs", s.authorize(authorization.ObjectDataSource, authorization.ActionUpdate), s.StartSyncRun)
	sources.POST("/sync_runs/:syncRunId/finish", s.authorize(authorization.ObjectDataSource, authorization.ActionUpdate), s.FinishSyncRun)
}
