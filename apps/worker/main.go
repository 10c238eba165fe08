package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/notifier/internal/broker"
	"github.com/smallbiznis/notifier/internal/clock"
	"github.com/smallbiznis/notifier/internal/config"
	"github.com/smallbiznis/notifier/internal/consumer"
	"github.com/smallbiznis/notifier/internal/dispatch"
	"github.com/smallbiznis/notifier/internal/envelope"
	"github.com/smallbiznis/notifier/internal/migration"
	"github.com/smallbiznis/notifier/internal/notification"
	"github.com/smallbiznis/notifier/internal/observability"
	"github.com/smallbiznis/notifier/internal/providers/email"
	"github.com/smallbiznis/notifier/pkg/db"
	"go.uber.org/fx"
)

// worker consumes broker events without serving the read API.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		notification.Module,

		envelope.Module,
		email.Module,
		dispatch.Module,
		broker.Module,
		consumer.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
