package main

import (
	"os"

	"vidshare-realtime/internal/config"
	"vidshare-realtime/internal/database"
	"vidshare-realtime/internal/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.New(os.Stderr, "error", "json").Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)

	if cfg.Database.URI == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	log.Info("Starting database migration...")

	// NewPostgresConnection migrates on connect.
	db, err := database.NewPostgresConnection(cfg.Database.URI, log)
	if err != nil {
		log.Error("Failed to migrate database", "error", err)
		os.Exit(1)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Error("Failed to get database instance", "error", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Error("Failed to ping database", "error", err)
		os.Exit(1)
	}

	log.Info("Database migration completed successfully!")
}
