package datasource

import (
	"github.com/pulsekit/pulse/internal/datasource/service"
	"go.uber.org/fx"
)

var Module = fx.Module("datasource.service",
	fx.Provide(service.NewService),
)
