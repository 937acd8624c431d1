package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/palcoscenico/agibilita/internal/config"
	"github.com/palcoscenico/agibilita/internal/directory"
	"github.com/palcoscenico/agibilita/internal/filing"
	"github.com/palcoscenico/agibilita/internal/migration"
	"github.com/palcoscenico/agibilita/internal/observability"
	"github.com/palcoscenico/agibilita/internal/providers"
	"github.com/palcoscenico/agibilita/internal/reconcile"
	"github.com/palcoscenico/agibilita/internal/respimport"
	"github.com/palcoscenico/agibilita/internal/server"
	"github.com/palcoscenico/agibilita/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,

		// Functional Domains
		directory.Module,
		filing.Module,
		reconcile.Module,
		providers.Module,
		respimport.Module,

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
