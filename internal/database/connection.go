package database

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mroshb/rallypoint/internal/config"
	"github.com/mroshb/rallypoint/internal/models"
	"github.com/mroshb/rallypoint/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func Connect(cfg *config.Config) (*gorm.DB, error) {
	var logLevel gormlogger.LogLevel
	if cfg.AppEnv == "development" {
		logLevel = gormlogger.Info
	} else {
		logLevel = gormlogger.Error
	}

	if cfg.DBDriver == config.DriverSQLite {
		return OpenSQLite(cfg.SQLitePath, logLevel)
	}

	db, err := gorm.Open(postgres.Open(cfg.GetDSN()), gormConfig(logLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetMaxOpenConns(200)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	logger.Info("Database connected", "driver", config.DriverPostgres)
	return db, nil
}

// OpenSQLite opens an embedded database. SQLite allows a single writer, so the
// pool is limited to one connection; callers must not use the root handle
// inside a transaction callback.
func OpenSQLite(path string, logLevel gormlogger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), gormConfig(logLevel))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	logger.Info("Database connected", "driver", config.DriverSQLite, "path", path)
	return db, nil
}

func gormConfig(logLevel gormlogger.LogLevel) *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}
}

func AutoMigrate(db *gorm.DB) error {
	logger.Info("Running database migrations...")

	err := db.AutoMigrate(
		&models.Account{},
		&models.Village{},
		&models.Building{},
		&models.ResourceField{},
		&models.UnitStack{},
		&models.WaveGroup{},
		&models.Movement{},
		&models.CombatReport{},
		&models.EventQueueItem{},
	)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	logger.Info("Database migrations completed successfully")
	return nil
}
