package main

import (
	"context"
	"os"

	"vidshare-realtime/internal/config"
	"vidshare-realtime/internal/database"
	"vidshare-realtime/internal/logger"
	"vidshare-realtime/internal/models"
	"vidshare-realtime/internal/repositories/postgres"
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

	log.Info("Starting database seeding...")

	db, err := database.NewPostgresConnection(cfg.Database.URI, log)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	userRepo := postgres.NewUserRepository(db)
	ctx := context.Background()

	// Demo viewers for identifying WebSocket sessions during local development
	users := []models.User{
		{Username: "admin", DisplayName: "Admin"},
		{Username: "alice", DisplayName: "Alice"},
		{Username: "bob", DisplayName: "Bob"},
		{Username: "charlie"},
	}

	for i := range users {
		if err := userRepo.Create(ctx, &users[i]); err != nil {
			log.Warn("User might already exist", "username", users[i].Username, "error", err)
			continue
		}
		log.Info("Created user", "id", users[i].ID, "username", users[i].Username)
	}

	log.Info("Database seeding completed")
}
