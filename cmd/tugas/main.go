package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tugas/internal/clock"
	"github.com/smallbiznis/tugas/internal/config"
	"github.com/smallbiznis/tugas/internal/migration"
	"github.com/smallbiznis/tugas/internal/observability"
	"github.com/smallbiznis/tugas/internal/scheduler"
	"github.com/smallbiznis/tugas/internal/server"
	"github.com/smallbiznis/tugas/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// schema must exist before the first request or tick
		migration.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
