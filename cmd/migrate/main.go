package main

// Run database migrations for the Postgres quota store:
//   go run ./cmd/migrate            (apply all)
//   go run ./cmd/migrate --command status
//   go run ./cmd/migrate --command down

import (
	"context"
	"log"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/yodusanwo/ai-trip-planner/internal/shared/config"
	"github.com/yodusanwo/ai-trip-planner/internal/shared/storage/db"
)

func main() {
	command := flag.String("command", "up", "migration command: up, down, status")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	opts := db.OptionsFromEnv(db.DefaultMigrateOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		log.Printf("failed to connect database: %v", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	switch *command {
	case "up":
		err = db.RunMigrations(ctx, sqlDB)
	case "down":
		err = db.RollbackMigration(ctx, sqlDB)
	case "status":
		err = db.MigrationStatus(ctx, sqlDB)
	default:
		log.Printf("unknown command %q", *command)
		sqlDB.Close()
		os.Exit(2)
	}
	if err != nil {
		log.Printf("migrate %s failed: %v", *command, err)
		sqlDB.Close()
		os.Exit(1)
	}
}
