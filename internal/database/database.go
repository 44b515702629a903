// Package database opens the gorm handle behind the identity and message stores.
package database

import (
	"fmt"
	"log"

	"github.com/quocanhngo/chatrelay/internal/config"
	"github.com/quocanhngo/chatrelay/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects with the configured driver and applies the pool limits.
// TranslateError turns unique violations into gorm.ErrDuplicatedKey on both drivers.
func Open(cfg config.DBConfig, gormLogger logger.Interface) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Driver)
	}

	if gormLogger == nil {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	log.Printf("🗄️  Database pool: driver=%s max_open=%d max_idle=%d", cfg.Driver, cfg.MaxOpenConns, cfg.MaxIdleConns)
	return db, nil
}

// AutoMigrate creates the relay tables from the gorm models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Identity{}, &model.Message{})
}

// Close releases the underlying pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
