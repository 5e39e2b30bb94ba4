package segment

import (
	"github.com/pulsekit/pulse/internal/segment/repository"
	"github.com/pulsekit/pulse/internal/segment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("segment.service",
	fx.Provide(
		repository.Provide,
		service.NewService,
	),
)
