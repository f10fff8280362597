package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"careerResume/internal/database"
	"careerResume/internal/errcode"
)

const maxSkillNameLength = 100

// SkillStore 管理用户技能。名称在同一用户下大小写不敏感唯一。
type SkillStore struct {
	db *gorm.DB
}

// NewSkillStore 构造 SkillStore。
func NewSkillStore(db *gorm.DB) *SkillStore {
	return &SkillStore{db: db}
}

// SkillInput 是创建与更新共用的输入；Proficiency 为空时取 Intermediate。
type SkillInput struct {
	Name        string
	Proficiency string
}

func (in SkillInput) toModel() (database.Skill, error) {
	name, err := normalizeSkillName(in.Name)
	if err != nil {
		return database.Skill{}, err
	}
	level := database.ProficiencyIntermediate
	if strings.TrimSpace(in.Proficiency) != "" {
		if level, err = database.ParseProficiencyLevel(in.Proficiency); err != nil {
			return database.Skill{}, err
		}
	}
	return database.Skill{Name: name, Proficiency: level}, nil
}

func normalizeSkillName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: skill name is required", errcode.ErrValidation)
	}
	if utf8.RuneCountInString(name) > maxSkillNameLength {
		return "", fmt.Errorf("%w: skill name exceeds %d characters", errcode.ErrValidation, maxSkillNameLength)
	}
	return name, nil
}

// List 按名称排序返回用户的全部技能。
func (s *SkillStore) List(ctx context.Context, userID uint) ([]database.Skill, error) {
	var skills []database.Skill
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("name_key ASC").
		Find(&skills).Error; err != nil {
		return nil, errcode.Storage("list skills", err)
	}
	return skills, nil
}

// Get 返回单项技能；不存在或不属于该用户时返回 ErrNotFound。
func (s *SkillStore) Get(ctx context.Context, userID, id uint) (*database.Skill, error) {
	var skill database.Skill
	if err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&skill).Error; err != nil {
		return nil, lookupErr("skill", id, err)
	}
	return &skill, nil
}

// Create 写入新技能，同名（忽略大小写）已存在时返回 ErrConflict。
func (s *SkillStore) Create(ctx context.Context, userID uint, in SkillInput) (*database.Skill, error) {
	skill, err := in.toModel()
	if err != nil {
		return nil, err
	}
	skill.UserID = userID

	db := s.db.WithContext(ctx)
	if err := ensureNameFree(db, userID, skill.Name, 0); err != nil {
		return nil, err
	}
	if err := db.Create(&skill).Error; err != nil {
		return nil, writeErr("create skill", skill.Name, err)
	}
	return &skill, nil
}

// Update 修改名称与熟练度，名称唯一性检查排除自身。
func (s *SkillStore) Update(ctx context.Context, userID, id uint, in SkillInput) (*database.Skill, error) {
	next, err := in.toModel()
	if err != nil {
		return nil, err
	}

	current, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	db := s.db.WithContext(ctx)
	if err := ensureNameFree(db, userID, next.Name, current.ID); err != nil {
		return nil, err
	}

	current.Name = next.Name
	current.Proficiency = next.Proficiency
	if err := db.Save(current).Error; err != nil {
		return nil, writeErr("update skill", next.Name, err)
	}
	return current, nil
}

// Delete 删除技能，并在同一事务内删除引用它的简历关联。
func (s *SkillStore) Delete(ctx context.Context, userID, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var skill database.Skill
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&skill).Error; err != nil {
			return lookupErr("skill", id, err)
		}
		if err := tx.Where("skill_id = ?", skill.ID).Delete(&database.ResumeSkill{}).Error; err != nil {
			return errcode.Storage("delete skill links", err)
		}
		if err := tx.Delete(&skill).Error; err != nil {
			return errcode.Storage("delete skill", err)
		}
		return nil
	})
}

// BulkAdd 批量添加技能名称，已存在或重复提交的名称被跳过，新技能熟练度为 Intermediate。
// 返回实际新建的技能。
func (s *SkillStore) BulkAdd(ctx context.Context, userID uint, names []string) ([]database.Skill, error) {
	candidates := make([]string, 0, len(names))
	for _, raw := range names {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		name, err := normalizeSkillName(raw)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, name)
	}

	created := make([]database.Skill, 0, len(candidates))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []string
		if err := tx.Model(&database.Skill{}).
			Where("user_id = ?", userID).
			Pluck("name_key", &existing).Error; err != nil {
			return errcode.Storage("load skill names", err)
		}
		taken := make(map[string]struct{}, len(existing)+len(candidates))
		for _, key := range existing {
			taken[key] = struct{}{}
		}

		for _, name := range candidates {
			key := database.SkillNameKey(name)
			if _, ok := taken[key]; ok {
				continue
			}
			taken[key] = struct{}{}
			created = append(created, database.Skill{
				UserID:      userID,
				Name:        name,
				Proficiency: database.ProficiencyIntermediate,
			})
		}
		if len(created) == 0 {
			return nil
		}
		if err := tx.Create(&created).Error; err != nil {
			return writeErr("bulk add skills", "", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func ensureNameFree(db *gorm.DB, userID uint, name string, exceptID uint) error {
	query := db.Model(&database.Skill{}).
		Where("user_id = ? AND name_key = ?", userID, database.SkillNameKey(name))
	if exceptID != 0 {
		query = query.Where("id <> ?", exceptID)
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return errcode.Storage("check skill name", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: skill %q already exists", errcode.ErrConflict, name)
	}
	return nil
}

// 并发写入时由唯一索引兜底。
func writeErr(op, name string, err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: skill %q already exists", errcode.ErrConflict, name)
	}
	return errcode.Storage(op, err)
}
