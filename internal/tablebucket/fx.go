package tablebucket

import (
	"github.com/pulsekit/pulse/internal/tablebucket/service"
	"go.uber.org/fx"
)

var Module = fx.Module("tablebucket.service",
	fx.Provide(service.NewService),
)
