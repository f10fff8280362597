package database

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User 表示系统中的账号与个人资料，Bio 作为自动摘要的开头。
type User struct {
	gorm.Model
	Email              string `gorm:"uniqueIndex;size:255"`
	PasswordHash       string `gorm:"size:255"`
	MustChangePassword bool
	FullName           string `gorm:"size:255"`
	Phone              string `gorm:"size:64"`
	Location           string `gorm:"size:255"`
	Bio                string `gorm:"type:text"`
	ProfilePictureURL  string `gorm:"size:512"`
}

// Achievement 是用户记录的一条经历。UserID 创建后不可修改。
type Achievement struct {
	ID             uint            `gorm:"primaryKey"`
	UserID         uint            `gorm:"index;not null"`
	User           User            `gorm:"constraint:OnDelete:CASCADE"`
	Type           AchievementType `gorm:"size:32;index;not null"`
	Title          string          `gorm:"size:255;not null"`
	Organization   string          `gorm:"size:255"`
	Description    string          `gorm:"type:text"`
	StartDate      *time.Time
	EndDate        *time.Time
	Status         string `gorm:"size:32"`
	CertificateKey string `gorm:"size:512"`
	Verified       bool
	SkillsUsed     datatypes.JSONSlice[string]
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Skill 是用户的一项技能；同一用户下 NameKey（小写名称）唯一。
type Skill struct {
	ID          uint             `gorm:"primaryKey"`
	UserID      uint             `gorm:"uniqueIndex:idx_skills_user_name_key;not null"`
	User        User             `gorm:"constraint:OnDelete:CASCADE"`
	Name        string           `gorm:"size:100;not null"`
	NameKey     string           `gorm:"uniqueIndex:idx_skills_user_name_key;size:100;not null"`
	Proficiency ProficiencyLevel `gorm:"size:32;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BeforeSave 保证整行写入时 NameKey 与 Name 同步。
func (s *Skill) BeforeSave(_ *gorm.DB) error {
	s.NameKey = SkillNameKey(s.Name)
	return nil
}

// SkillNameKey 返回用于大小写不敏感唯一约束的键。
func SkillNameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resume 是由生成流程组装出来的一份简历。
type Resume struct {
	ID        uint         `gorm:"primaryKey"`
	UserID    uint         `gorm:"index;not null"`
	User      User         `gorm:"constraint:OnDelete:CASCADE"`
	Title     string       `gorm:"size:255;not null"`
	Template  TemplateType `gorm:"size:32;not null"`
	Summary   string       `gorm:"type:text"`
	IsDefault bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResumeAchievement 关联简历与成就，DisplayOrder 决定渲染顺序。
type ResumeAchievement struct {
	ResumeID      uint        `gorm:"primaryKey;autoIncrement:false"`
	AchievementID uint        `gorm:"primaryKey;autoIncrement:false;index"`
	Resume        Resume      `gorm:"constraint:OnDelete:CASCADE"`
	Achievement   Achievement `gorm:"constraint:OnDelete:CASCADE"`
	DisplayOrder  int         `gorm:"not null"`
	CreatedAt     time.Time
}

// ResumeSkill 关联简历与技能，DisplayOrder 决定渲染顺序。
type ResumeSkill struct {
	ResumeID     uint   `gorm:"primaryKey;autoIncrement:false"`
	SkillID      uint   `gorm:"primaryKey;autoIncrement:false;index"`
	Resume       Resume `gorm:"constraint:OnDelete:CASCADE"`
	Skill        Skill  `gorm:"constraint:OnDelete:CASCADE"`
	DisplayOrder int    `gorm:"not null"`
	CreatedAt    time.Time
}

// Models 返回需要迁移的全部模型，按依赖顺序排列。
func Models() []any {
	return []any{
		&User{},
		&Achievement{},
		&Skill{},
		&Resume{},
		&ResumeAchievement{},
		&ResumeSkill{},
	}
}

// Migrate 执行 AutoMigrate。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}
