package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tugas/internal/clock"
	"github.com/smallbiznis/tugas/internal/config"
	"github.com/smallbiznis/tugas/internal/observability"
	"github.com/smallbiznis/tugas/internal/server"
	"github.com/smallbiznis/tugas/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		// verify, entitlements and admin routes
		server.Module,
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
