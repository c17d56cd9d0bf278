// Package database owns the gorm handle: it opens the configured store,
// migrates the schema and closes the pool on shutdown.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"storefront/internal/config"
	"storefront/internal/models"
)

// Open connects to the configured database and migrates the schema.
func Open(cfg config.DatabaseConfig, logger zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(&zerologWriter{logger: logger.With().Str("component", "gorm").Logger()}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s database: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite" {
		// One connection serialises writers and keeps the per-connection
		// foreign_keys pragma in effect for every statement.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)

		if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
			return nil, fmt.Errorf("failed to enable sqlite foreign keys: %w", err)
		}
	}

	if err := Migrate(db); err != nil {
		_ = Close(db)
		return nil, err
	}

	logger.Info().Str("driver", cfg.Driver).Msg("database connected")
	return db, nil
}

// Migrate creates or updates the tables for every model.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Category{}, &models.Product{}, &models.User{}); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// zerologWriter adapts zerolog to gorm's logger.Writer.
type zerologWriter struct {
	logger zerolog.Logger
}

func (w *zerologWriter) Printf(format string, args ...interface{}) {
	w.logger.Warn().Msgf(format, args...)
}

// Ping reports whether the database answers.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
