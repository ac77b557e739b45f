package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/attendly/internal/attendance"
	"github.com/smallbiznis/attendly/internal/clock"
	"github.com/smallbiznis/attendly/internal/config"
	"github.com/smallbiznis/attendly/internal/event"
	"github.com/smallbiznis/attendly/internal/migration"
	"github.com/smallbiznis/attendly/internal/observability"
	"github.com/smallbiznis/attendly/internal/payment"
	"github.com/smallbiznis/attendly/internal/processor"
	"github.com/smallbiznis/attendly/internal/server"
	"github.com/smallbiznis/attendly/internal/settlement"
	"github.com/smallbiznis/attendly/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Functional domains
		event.Module,
		attendance.Module,
		payment.Module,
		processor.Module,
		settlement.Module,

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
