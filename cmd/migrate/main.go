// migrate applies or rolls back the embedded schema: go run ./cmd/migrate -direction up
package main

import (
	"flag"
	"log/slog"
	"os"

	"identity-audit/internal/config"
	"identity-audit/internal/db/migrate"
	"identity-audit/pkg/logger"
)

func main() {
	direction := flag.String("direction", migrate.Up, "migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logger.New(cfg.App.Env)

	if err := migrate.Run(cfg.PostgresURL(), *direction); err != nil {
		log.Error("migration failed", "direction", *direction, "err", err)
		os.Exit(1)
	}
	log.Info("migration complete", "direction", *direction)
}
