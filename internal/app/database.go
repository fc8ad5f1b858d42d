package app

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/leosozza/evowhats/config"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// getDatabase opens the configured database. Errors are fatal at startup.
func getDatabase(cfg config.DBConfig, workdir string) *gorm.DB {
	db, err := OpenDatabase(cfg, workdir)
	if err != nil {
		zap.S().Fatalf("database connection failed: %v", err)
	}
	return db
}

// OpenDatabase opens a gorm handle for the postgres or sqlite backend.
func OpenDatabase(cfg config.DBConfig, workdir string) (*gorm.DB, error) {
	gormCfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if cfg.Debug {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch strings.ToLower(cfg.Type) {
	case "sqlite", "sqlite3":
		dsn := cfg.Name
		switch {
		case dsn == "":
			dsn = path.Join(workdir, "data", "evowhats.db")
		case dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") && !path.IsAbs(dsn):
			dsn = path.Join(workdir, "data", dsn)
		}
		dialector = sqlite.Open(dsn)
	default:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=UTC",
			cfg.Host, cfg.Port, cfg.User, cfg.Passwd, cfg.Name)
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(strings.ToLower(cfg.Type), "sqlite") {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxConn > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxConn)
		}
		if cfg.IdleConn > 0 {
			sqlDB.SetMaxIdleConns(cfg.IdleConn)
		}
		sqlDB.SetConnMaxLifetime(time.Hour)
	}
	return db, nil
}
