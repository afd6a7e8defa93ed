package postgres

import (
	"fmt"
	"log"
	"time"

	"parkclash/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB holds the global database connection
var DB *gorm.DB

// Init opens the database connection, migrates the schema and sets the global DB variable
func Init(url string) (*gorm.DB, error) {
	// Configure GORM logger with higher slow SQL threshold
	gormLogger := logger.New(
		log.New(log.Writer(), "\r\n", log.LstdFlags), // io writer
		logger.Config{
			SlowThreshold: time.Millisecond * 500,
			LogLevel:      logger.Warn,
		},
	)

	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	// Set global DB variable
	DB = db
	log.Println("Successfully connected to PostgreSQL")

	return db, nil
}

// Migrate creates or updates every table the service writes to
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&model.ParkPG{},
		&model.ZonePG{},
		&model.MatchPG{},
		&model.TelemetryPG{},
		&model.SuspiciousActivityPG{},
		&model.MatchEventPG{},
	)
	if err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// GetDB returns the global database connection
func GetDB() *gorm.DB {
	return DB
}

// Close closes the underlying connection pool
func Close() error {
	if DB == nil {
		return nil
	}
	log.Println("Closing PostgreSQL connection...")
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
