package psql

import (
	"context"
	"fmt"

	"sportlink/sportlink/config"
	"sportlink/sportlink/sources/psql/models"
	"sportlink/sportlink/utils/logging"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Database struct {
	DB *gorm.DB
}

// NewDatabase opens postgres, or sqlite when DBDriver is "sqlite", and
// migrates the chat tables.
func NewDatabase(ctx context.Context, cfg config.Config) (*Database, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite":
		dialector = sqlite.Open(cfg.SQLitePath)
	case "postgres", "":
		connStr := fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBName,
		)
		dialector = postgres.Open(connStr)
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if cfg.DBDriver == "sqlite" {
		// a single connection keeps ":memory:" databases shared and serializes writers
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	logging.AppLogger.Info("connected to database",
		zap.String("driver", db.Dialector.Name()), zap.String("host", cfg.DBHost), zap.String("name", cfg.DBName))

	// Auto-migrate models (automatic schema creation)
	if err := db.WithContext(ctx).AutoMigrate(&models.ChatThread{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	return &Database{DB: db}, nil
}

func (db *Database) Close() {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return
	}
	sqlDB.Close()
}
