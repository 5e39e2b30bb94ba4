package point

import (
	"github.com/pulsekit/pulse/internal/point/service"
	"go.uber.org/fx"
)

var Module = fx.Module("point.service",
	fx.Provide(service.NewService),
)
