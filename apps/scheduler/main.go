package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tugas/internal/audit"
	"github.com/smallbiznis/tugas/internal/chain"
	"github.com/smallbiznis/tugas/internal/clock"
	"github.com/smallbiznis/tugas/internal/config"
	"github.com/smallbiznis/tugas/internal/observability"
	"github.com/smallbiznis/tugas/internal/payment"
	"github.com/smallbiznis/tugas/internal/paymentpolicy"
	"github.com/smallbiznis/tugas/internal/ratelimit"
	"github.com/smallbiznis/tugas/internal/scheduler"
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

		// Domain services required by the resume worker
		chain.Module,
		audit.Module,
		paymentpolicy.Module,
		payment.Module,
		ratelimit.Module,

		// No server module!
		scheduler.Module,
	)
	app.Run()
}

// RegisterSnowflake uses a different node than the api so ids never collide.
func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
