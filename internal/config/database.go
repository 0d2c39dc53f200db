package config

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"microcred/assessment-engine/internal/models"
)

func InitDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := cfg.GetDatabaseDSN()

	logLevel := logger.Silent
	if cfg.Server.Env == "development" {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		// Duplicate-key violations must surface as gorm.ErrDuplicatedKey;
		// idempotency enforcement depends on it.
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Println("✅ Database connected successfully")

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Println("✅ Database migration completed")

	return db, nil
}

// Migrate runs auto-migration for all persisted models. Shared with the
// SQLite-backed test harness.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Assessment{},
		&models.QuestionSnapshot{},
		&models.Response{},
		&models.Score{},
		&models.AsyncJob{},
		&models.Recommendation{},
		&models.RecommendationItem{},
	)
}
