package common

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ConnectDb opens DATABASE_URL when set and the local sqlite file otherwise.
func ConnectDb(cfg *Config) (*gorm.DB, error) {
	gormLogger := logger.Default.LogMode(logger.Silent)
	if cfg.DBLog {
		gormLogger = logger.Default.LogMode(logger.Info)
	}
	gormCfg := &gorm.Config{
		Logger:                                   gormLogger,
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	}

	if cfg.DatabaseURL != "" {
		dsn := cfg.DatabaseURL
		if strings.HasPrefix(dsn, "postgres://") {
			dsn = "postgresql://" + strings.TrimPrefix(dsn, "postgres://")
		}

		db, err := gorm.Open(postgres.Open(dsn), gormCfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		log.Println("opened postgres database from DATABASE_URL")

		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
		return db, nil
	}

	dbFile := cfg.SqlitePath
	log.Println("attemptConnectDb: sqlite_db:", dbFile)
	if dir := filepath.Dir(dbFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbFile), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		log.Printf("sqlite: could not enable WAL journal mode: %v", err)
	}

	log.Println("opened sqlite db at:", dbFile)
	return db, nil
}
