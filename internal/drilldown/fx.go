package drilldown

import (
	"github.com/pulsekit/pulse/internal/drilldown/service"
	"go.uber.org/fx"
)

var Module = fx.Module("drilldown.service",
	fx.Provide(service.NewService),
)
