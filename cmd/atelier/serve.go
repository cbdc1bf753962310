package main

import (
	"github.com/smallbiznis/atelier/internal/clock"
	"github.com/smallbiznis/atelier/internal/config"
	"github.com/smallbiznis/atelier/internal/logger"
	"github.com/smallbiznis/atelier/internal/migration"
	"github.com/smallbiznis/atelier/internal/server"
	"github.com/smallbiznis/atelier/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Run: func(cmd *cobra.Command, args []string) {
		app := fx.New(
			config.Module,
			logger.Module,
			fx.Provide(registerSnowflake),
			db.Module,
			clock.Module,
			migration.Module,
			server.Module,
		)
		app.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
