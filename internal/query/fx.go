package query

import (
	"github.com/pulsekit/pulse/internal/query/service"
	"go.uber.org/fx"
)

var Module = fx.Module("query.service",
	fx.Provide(service.NewService),
)
