package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/entityusage/internal/clock"
	"github.com/smallbiznis/entityusage/internal/config"
	"github.com/smallbiznis/entityusage/internal/entity"
	"github.com/smallbiznis/entityusage/internal/migration"
	"github.com/smallbiznis/entityusage/internal/observability"
	"github.com/smallbiznis/entityusage/internal/ratelimit"
	"github.com/smallbiznis/entityusage/internal/server"
	"github.com/smallbiznis/entityusage/internal/usage"
	"github.com/smallbiznis/entityusage/pkg/db"
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
		migration.Module,
		ratelimit.Module,

		// Functional Domains
		entity.Module,
		usage.Module,

		server.Module,
	)
	app.Run()
}

// RegisterSnowflake returns the id generator for this node. Every replica
// sharing a database needs its own SNOWFLAKE_NODE_ID.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
