package database

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"careerResume/internal/config"
)

const slowQueryThreshold = 500 * time.Millisecond

// InitDatabase 连接 PostgreSQL 并验证连通性。SQL 日志写入默认 slog 处理器。
func InitDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         newGormLogger(cfg.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func newGormLogger(level string) logger.Interface {
	gormLevel := parseLogLevel(level)
	writer := slog.NewLogLogger(slog.Default().Handler(), slogLevelFor(gormLevel))
	return logger.New(writer, logger.Config{
		SlowThreshold: slowQueryThreshold,
		LogLevel:      gormLevel,
		// 按 ID 查询未命中在业务上是 404，不是数据库问题。
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

func parseLogLevel(raw string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

func slogLevelFor(level logger.LogLevel) slog.Level {
	switch level {
	case logger.Info:
		return slog.LevelInfo
	case logger.Error:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}
