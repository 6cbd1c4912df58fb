package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shorelabs/textgate/internal/config"
	"github.com/shorelabs/textgate/internal/logger"
	"github.com/shorelabs/textgate/internal/migration"
	"github.com/shorelabs/textgate/internal/seed"
	"github.com/shorelabs/textgate/internal/server"
	"github.com/shorelabs/textgate/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		seed.Module,
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
