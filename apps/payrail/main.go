package main

import (
	"go.uber.org/fx"

	"github.com/bwmarrin/snowflake"

	"github.com/clipverse/payrail/internal/clock"
	"github.com/clipverse/payrail/internal/config"
	"github.com/clipverse/payrail/internal/migration"
	"github.com/clipverse/payrail/internal/observability"
	"github.com/clipverse/payrail/internal/server"
	"github.com/clipverse/payrail/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
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
