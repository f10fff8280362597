package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"careerResume/internal/database"
	"careerResume/internal/errcode"
)

const defaultAchievementStatus = "completed"

// AchievementStore 管理用户的成就记录。
type AchievementStore struct {
	db *gorm.DB
}

// NewAchievementStore 构造 AchievementStore。
func NewAchievementStore(db *gorm.DB) *AchievementStore {
	return &AchievementStore{db: db}
}

// AchievementInput 是创建与更新共用的输入，Type 在边界处校验。
type AchievementInput struct {
	Type           string
	Title          string
	Organization   string
	Description    string
	StartDate      *time.Time
	EndDate        *time.Time
	Status         string
	CertificateKey string
	SkillsUsed     []string
}

// TypeCount 是按类型统计的结果。
type TypeCount struct {
	Type  database.AchievementType `json:"type"`
	Count int64                    `json:"count"`
}

func (in AchievementInput) toModel() (database.Achievement, error) {
	achievementType, err := database.ParseAchievementType(in.Type)
	if err != nil {
		return database.Achievement{}, err
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return database.Achievement{}, fmt.Errorf("%w: title is required", errcode.ErrValidation)
	}
	if utf8.RuneCountInString(title) > 255 {
		return database.Achievement{}, fmt.Errorf("%w: title exceeds 255 characters", errcode.ErrValidation)
	}
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return database.Achievement{}, fmt.Errorf("%w: end_date precedes start_date", errcode.ErrValidation)
	}

	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = defaultAchievementStatus
	}
	if len(status) > 32 {
		return database.Achievement{}, fmt.Errorf("%w: status exceeds 32 characters", errcode.ErrValidation)
	}

	return database.Achievement{
		Type:           achievementType,
		Title:          title,
		Organization:   strings.TrimSpace(in.Organization),
		Description:    strings.TrimSpace(in.Description),
		StartDate:      in.StartDate,
		EndDate:        in.EndDate,
		Status:         status,
		CertificateKey: strings.TrimSpace(in.CertificateKey),
		SkillsUsed:     normalizeTags(in.SkillsUsed),
	}, nil
}

// List 返回用户的成就，可按类型过滤，开始日期新的在前。
func (s *AchievementStore) List(ctx context.Context, userID uint, typeFilter string) ([]database.Achievement, error) {
	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if strings.TrimSpace(typeFilter) != "" {
		achievementType, err := database.ParseAchievementType(typeFilter)
		if err != nil {
			return nil, err
		}
		query = query.Where("type = ?", achievementType)
	}

	var achievements []database.Achievement
	if err := query.Order("start_date DESC").Order("id DESC").Find(&achievements).Error; err != nil {
		return nil, errcode.Storage("list achievements", err)
	}
	return achievements, nil
}

// Get 返回单条成就；不存在或不属于该用户时返回 ErrNotFound。
func (s *AchievementStore) Get(ctx context.Context, userID, id uint) (*database.Achievement, error) {
	var achievement database.Achievement
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&achievement).Error; err != nil {
		return nil, lookupErr("achievement", id, err)
	}
	return &achievement, nil
}

// Create 校验输入并写入新成就。verified 始终从 false 开始，由证书校验任务置位。
func (s *AchievementStore) Create(ctx context.Context, userID uint, in AchievementInput) (*database.Achievement, error) {
	achievement, err := in.toModel()
	if err != nil {
		return nil, err
	}
	achievement.UserID = userID

	if err := s.db.WithContext(ctx).Create(&achievement).Error; err != nil {
		return nil, errcode.Storage("create achievement", err)
	}
	return &achievement, nil
}

// Update 整体覆盖可编辑字段。证书变化时重置 verified。UserID 不可修改。
func (s *AchievementStore) Update(ctx context.Context, userID, id uint, in AchievementInput) (*database.Achievement, error) {
	next, err := in.toModel()
	if err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"type":            next.Type,
		"title":           next.Title,
		"organization":    next.Organization,
		"description":     next.Description,
		"start_date":      next.StartDate,
		"end_date":        next.EndDate,
		"status":          next.Status,
		"certificate_key": next.CertificateKey,
		"skills_used":     next.SkillsUsed,
	}
	if next.CertificateKey != current.CertificateKey {
		updates["verified"] = false
	}

	db := s.db.WithContext(ctx)
	if err := db.Model(current).Updates(updates).Error; err != nil {
		return nil, errcode.Storage("update achievement", err)
	}
	if err := db.First(current, current.ID).Error; err != nil {
		return nil, errcode.Storage("reload achievement", err)
	}
	return current, nil
}

// Delete 删除成就，并在同一事务内删除引用它的简历关联。
func (s *AchievementStore) Delete(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var achievement database.Achievement
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&achievement).Error; err != nil {
			return lookupErr("achievement", id, err)
		}
		if err := tx.Where("achievement_id = ?", achievement.ID).Delete(&database.ResumeAchievement{}).Error; err != nil {
			return errcode.Storage("delete achievement links", err)
		}
		if err := tx.Delete(&achievement).Error; err != nil {
			return errcode.Storage("delete achievement", err)
		}
		return nil
	})
}

// Stats 按类型统计用户的成就数量。
func (s *AchievementStore) Stats(ctx context.Context, userID uint) ([]TypeCount, error) {
	var stats []TypeCount
	if err := s.db.WithContext(ctx).
		Model(&database.Achievement{}).
		Select("type, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("type").
		Order("type").
		Scan(&stats).Error; err != nil {
		return nil, errcode.Storage("achievement stats", err)
	}
	return stats, nil
}

// FindByID 不做归属过滤，仅供后台任务使用。
func (s *AchievementStore) FindByID(ctx context.Context, id uint) (*database.Achievement, error) {
	var achievement database.Achievement
	if err := s.db.WithContext(ctx).First(&achievement, id).Error; err != nil {
		return nil, lookupErr("achievement", id, err)
	}
	return &achievement, nil
}

// SetVerified 更新校验标记。仅当证书键未被并发修改时生效，返回是否写入。
func (s *AchievementStore) SetVerified(ctx context.Context, id uint, certificateKey string, verified bool) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&database.Achievement{}).
		Where("id = ? AND certificate_key = ?", id, certificateKey).
		Update("verified", verified)
	if result.Error != nil {
		return false, errcode.Storage("set achievement verified", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
