// Package dbtest 为各包测试提供基于 SQLite 临时文件的数据库。
package dbtest

import (
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"careerResume/internal/database"
)

// New 打开一个已迁移的独立数据库，测试结束时自动关闭。
func New(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?_foreign_keys=on"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("unwrap db: %v", err)
	}
	// SQLite 单写者，避免事务内外连接互相等待。
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	return db
}

// User 写入一个测试用户。
func User(t *testing.T, db *gorm.DB, email string) database.User {
	t.Helper()
	user := database.User{Email: email, FullName: "Test " + email}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// Achievement 写入一条成就，start 为零值时不设置开始日期。
func Achievement(t *testing.T, db *gorm.DB, userID uint, kind database.AchievementType, title string, start time.Time, tags ...string) database.Achievement {
	t.Helper()
	a := database.Achievement{
		UserID:     userID,
		Type:       kind,
		Title:      title,
		Status:     "completed",
		SkillsUsed: tags,
	}
	if !start.IsZero() {
		a.StartDate = &start
	}
	if err := db.Create(&a).Error; err != nil {
		t.Fatalf("seed achievement: %v", err)
	}
	return a
}

// Skill 写入一项技能。
func Skill(t *testing.T, db *gorm.DB, userID uint, name string, level database.ProficiencyLevel) database.Skill {
	t.Helper()
	s := database.Skill{UserID: userID, Name: name, Proficiency: level}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("seed skill: %v", err)
	}
	return s
}
