package database

import (
	"fmt"
	"log/slog"

	"vidshare-realtime/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewPostgresConnection opens the content database and migrates the tables
// the realtime layer reads (users) and writes (conversation_messages).
func NewPostgresConnection(dburi string, log *slog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dburi), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		AllowGlobalUpdate:                        false,
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Info("Database connection established successfully")
	return db, nil
}

// Migrate creates or updates the schema owned by this service.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.User{}, &models.ConversationMessage{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
