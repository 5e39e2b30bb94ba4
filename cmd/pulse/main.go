package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/pulsekit/pulse/internal/clock"
	"github.com/pulsekit/pulse/internal/config"
	"github.com/pulsekit/pulse/internal/logger"
	"github.com/pulsekit/pulse/internal/migration"
	"github.com/pulsekit/pulse/internal/server"
	"github.com/pulsekit/pulse/internal/telemetry"
	"github.com/pulsekit/pulse/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		telemetry.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
