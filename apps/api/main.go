package main

import (
	"github.com/smallbiznis/notifier/internal/config"
	"github.com/smallbiznis/notifier/internal/migration"
	"github.com/smallbiznis/notifier/internal/notification"
	"github.com/smallbiznis/notifier/internal/observability"
	"github.com/smallbiznis/notifier/internal/server"
	"github.com/smallbiznis/notifier/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		migration.Module,

		notification.Module,
		server.Module,
	)
	app.Run()
}
