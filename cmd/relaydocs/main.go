package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/relaydocs/relaydocs/internal/migration"
	"github.com/relaydocs/relaydocs/internal/observability"
	"github.com/relaydocs/relaydocs/internal/server"
	"github.com/relaydocs/relaydocs/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,

		migration.Module,
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
