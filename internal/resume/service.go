package resume

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"careerResume/internal/database"
	"careerResume/internal/errcode"
)

// DefaultTitle 在生成请求未提供标题时使用。
const DefaultTitle = "My Resume"

const maxTitleLength = 255

// Service 负责简历的组装、读取与关联维护。所有操作都显式接收 userID。
type Service struct {
	db         *gorm.DB
	maxResumes int
}

// NewService 构造 Service；maxResumes <= 0 表示不限制数量。
func NewService(db *gorm.DB, maxResumes int) *Service {
	return &Service{db: db, maxResumes: maxResumes}
}

// GenerateParams 描述一次生成请求。ID 列表为空（nil 或长度为 0）时选取用户全部条目。
type GenerateParams struct {
	Title          string
	Template       string
	AchievementIDs []uint
	SkillIDs       []uint
}

// Generated 是生成结果，Achievements/Skills 按 display_order 排列。
type Generated struct {
	Resume       database.Resume
	Summary      string
	Achievements []database.Achievement
	Skills       []database.Skill
}

// Complete 是预览页所需的完整简历数据。
type Complete struct {
	Resume       database.Resume
	User         database.User
	Achievements []database.Achievement
	Skills       []database.Skill
}

// UpdateParams 中为 nil 的字段保持不变。
type UpdateParams struct {
	Title     *string
	Template  *string
	Summary   *string
	IsDefault *bool
}

// Generate 在单个事务内解析条目、生成摘要并写入简历及其关联；任一步失败全部回滚。
func (s *Service) Generate(ctx context.Context, userID uint, params GenerateParams) (*Generated, error) {
	if userID == 0 {
		return nil, errcode.ErrUnauthorized
	}

	template, err := database.ParseTemplateType(params.Template)
	if err != nil {
		return nil, err
	}
	title, err := normalizeTitle(params.Title, DefaultTitle)
	if err != nil {
		return nil, err
	}

	var out Generated
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkResumeLimit(tx, userID); err != nil {
			return err
		}

		achievements, err := resolveAchievements(tx, userID, params.AchievementIDs)
		if err != nil {
			return errcode.Storage("resolve achievements", err)
		}
		skills, err := resolveSkills(tx, userID, params.SkillIDs)
		if err != nil {
			return errcode.Storage("resolve skills", err)
		}

		var user database.User
		if err := tx.First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: user %d does not exist", errcode.ErrUnauthorized, userID)
			}
			return errcode.Storage("load user", err)
		}

		summary := Synthesize(user, achievements, skills)

		resume := database.Resume{
			UserID:    userID,
			Title:     title,
			Template:  template,
			Summary:   summary,
			IsDefault: false,
		}
		if err := tx.Create(&resume).Error; err != nil {
			return errcode.Storage("insert resume", err)
		}

		if len(achievements) > 0 {
			links := make([]database.ResumeAchievement, 0, len(achievements))
			for i, a := range achievements {
				links = append(links, database.ResumeAchievement{
					ResumeID:      resume.ID,
					AchievementID: a.ID,
					DisplayOrder:  i,
				})
			}
			if err := tx.Create(&links).Error; err != nil {
				return errcode.Storage("insert achievement links", err)
			}
		}

		if len(skills) > 0 {
			links := make([]database.ResumeSkill, 0, len(skills))
			for i, sk := range skills {
				links = append(links, database.ResumeSkill{
					ResumeID:     resume.ID,
					SkillID:      sk.ID,
					DisplayOrder: i,
				})
			}
			if err := tx.Create(&links).Error; err != nil {
				return errcode.Storage("insert skill links", err)
			}
		}

		out = Generated{
			Resume:       resume,
			Summary:      summary,
			Achievements: achievements,
			Skills:       skills,
		}
		return nil
	})
	if err != nil {
		return nil, classify("generate resume", err)
	}

	return &out, nil
}

// GetComplete 返回简历、用户资料子集以及按展示顺序排列的成就和技能。
// 简历不存在或不属于该用户时返回 ErrNotFound。
func (s *Service) GetComplete(ctx context.Context, resumeID, userID uint) (*Complete, error) {
	if userID == 0 {
		return nil, errcode.ErrUnauthorized
	}

	db := s.db.WithContext(ctx)

	resume, err := ownedResume(db, userID, resumeID)
	if err != nil {
		return nil, err
	}

	var user database.User
	if err := db.
		Select("id", "email", "full_name", "phone", "location", "bio", "profile_picture_url", "created_at", "updated_at").
		First(&user, userID).Error; err != nil {
		return nil, classify("load user", notFound(err, "user %d", userID))
	}

	var achievements []database.Achievement
	if err := db.Model(&database.Achievement{}).
		Select("achievements.*").
		Joins("JOIN resume_achievements ON resume_achievements.achievement_id = achievements.id").
		Where("resume_achievements.resume_id = ?", resume.ID).
		Order("resume_achievements.display_order ASC").
		Order("achievements.start_date DESC").
		Find(&achievements).Error; err != nil {
		return nil, errcode.Storage("load resume achievements", err)
	}

	var skills []database.Skill
	if err := db.Model(&database.Skill{}).
		Select("skills.*").
		Joins("JOIN resume_skills ON resume_skills.skill_id = skills.id").
		Where("resume_skills.resume_id = ?", resume.ID).
		Order("resume_skills.display_order ASC").
		Order("skills.id ASC").
		Find(&skills).Error; err != nil {
		return nil, errcode.Storage("load resume skills", err)
	}

	return &Complete{
		Resume:       *resume,
		User:         user,
		Achievements: achievements,
		Skills:       skills,
	}, nil
}

// List 返回用户的全部简历，最新的在前。
func (s *Service) List(ctx context.Context, userID uint) ([]database.Resume, error) {
	if userID == 0 {
		return nil, errcode.ErrUnauthorized
	}
	var resumes []database.Resume
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&resumes).Error; err != nil {
		return nil, errcode.Storage("list resumes", err)
	}
	return resumes, nil
}

// Update 修改简历元数据。设为默认时同一事务内清除该用户其他简历的默认标记。
func (s *Service) Update(ctx context.Context, userID, resumeID uint, params UpdateParams) (*database.Resume, error) {
	if userID == 0 {
		return nil, errcode.ErrUnauthorized
	}

	updates := map[string]any{}
	if params.Title != nil {
		title, err := normalizeTitle(*params.Title, "")
		if err != nil {
			return nil, err
		}
		if title == "" {
			return nil, fmt.Errorf("%w: title must not be empty", errcode.ErrValidation)
		}
		updates["title"] = title
	}
	if params.Template != nil {
		if strings.TrimSpace(*params.Template) == "" {
			return nil, fmt.Errorf("%w: template must not be empty", errcode.ErrValidation)
		}
		template, err := database.ParseTemplateType(*params.Template)
		if err != nil {
			return nil, err
		}
		updates["template"] = template
	}
	if params.Summary != nil {
		updates["summary"] = strings.TrimSpace(*params.Summary)
	}
	if params.IsDefault != nil {
		updates["is_default"] = *params.IsDefault
	}

	var resume *database.Resume
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		resume, err = ownedResume(tx, userID, resumeID)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			return nil
		}

		if params.IsDefault != nil && *params.IsDefault {
			if err := tx.Model(&database.Resume{}).
				Where("user_id = ? AND id <> ?", userID, resume.ID).
				Update("is_default", false).Error; err != nil {
				return errcode.Storage("clear default resume", err)
			}
		}

		if err := tx.Model(resume).Updates(updates).Error; err != nil {
			return errcode.Storage("update resume", err)
		}
		if err := tx.First(resume, resume.ID).Error; err != nil {
			return errcode.Storage("reload resume", err)
		}
		return nil
	})
	if err != nil {
		return nil, classify("update resume", err)
	}
	return resume, nil
}

// Delete 删除简历并级联删除其全部关联。
func (s *Service) Delete(ctx context.Context, userID, resumeID uint) error {
	if userID == 0 {
		return errcode.ErrUnauthorized
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resume, err := ownedResume(tx, userID, resumeID)
		if err != nil {
			return err
		}
		if err := tx.Where("resume_id = ?", resume.ID).Delete(&database.ResumeAchievement{}).Error; err != nil {
			return errcode.Storage("delete achievement links", err)
		}
		if err := tx.Where("resume_id = ?", resume.ID).Delete(&database.ResumeSkill{}).Error; err != nil {
			return errcode.Storage("delete skill links", err)
		}
		if err := tx.Delete(&database.Resume{}, resume.ID).Error; err != nil {
			return errcode.Storage("delete resume", err)
		}
		return nil
	})
	return classify("delete resume", err)
}

// LinkAchievement 把成就追加到简历末尾；已关联时不做任何改动。
func (s *Service) LinkAchievement(ctx context.Context, userID, resumeID, achievementID uint) error {
	if userID == 0 {
		return errcode.ErrUnauthorized
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resume, err := ownedResume(tx, userID, resumeID)
		if err != nil {
			return err
		}
		if err := ensureOwned(tx, &database.Achievement{}, userID, achievementID, "achievement"); err != nil {
			return err
		}

		order, err := nextDisplayOrder(tx, &database.ResumeAchievement{}, resume.ID)
		if err != nil {
			return err
		}
		link := database.ResumeAchievement{
			ResumeID:      resume.ID,
			AchievementID: achievementID,
			DisplayOrder:  order,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return errcode.Storage("insert achievement link", err)
		}
		return nil
	})
	return classify("link achievement", err)
}

// UnlinkAchievement 移除关联。关联不存在或简历不属于该用户时同样视为成功。
func (s *Service) UnlinkAchievement(ctx context.Context, userID, resumeID, achievementID uint) error {
	return s.unlink(ctx, userID, resumeID, &database.ResumeAchievement{}, "achievement_id", achievementID)
}

// LinkSkill 把技能追加到简历末尾；已关联时不做任何改动。
func (s *Service) LinkSkill(ctx context.Context, userID, resumeID, skillID uint) error {
	if userID == 0 {
		return errcode.ErrUnauthorized
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		resume, err := ownedResume(tx, userID, resumeID)
		if err != nil {
			return err
		}
		if err := ensureOwned(tx, &database.Skill{}, userID, skillID, "skill"); err != nil {
			return err
		}

		order, err := nextDisplayOrder(tx, &database.ResumeSkill{}, resume.ID)
		if err != nil {
			return err
		}
		link := database.ResumeSkill{
			ResumeID:     resume.ID,
			SkillID:      skillID,
			DisplayOrder: order,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error; err != nil {
			return errcode.Storage("insert skill link", err)
		}
		return nil
	})
	return classify("link skill", err)
}

// UnlinkSkill 移除技能关联，语义同 UnlinkAchievement。
func (s *Service) UnlinkSkill(ctx context.Context, userID, resumeID, skillID uint) error {
	return s.unlink(ctx, userID, resumeID, &database.ResumeSkill{}, "skill_id", skillID)
}

// unlink 以单条 DELETE 删除关联，归属子查询与外层语句共用同一个带 ctx 的会话。
func (s *Service) unlink(ctx context.Context, userID, resumeID uint, link any, column string, itemID uint) error {
	if userID == 0 {
		return errcode.ErrUnauthorized
	}
	db := s.db.WithContext(ctx)
	owned := db.Model(&database.Resume{}).Select("id").Where("user_id = ?", userID)
	err := db.
		Where("resume_id = ? AND "+column+" = ?", resumeID, itemID).
		Where("resume_id IN (?)", owned).
		Delete(link).Error
	if err != nil {
		return errcode.Storage("unlink "+strings.TrimSuffix(column, "_id"), err)
	}
	return nil
}

func (s *Service) checkResumeLimit(tx *gorm.DB, userID uint) error {
	if s.maxResumes <= 0 {
		return nil
	}
	var count int64
	if err := tx.Model(&database.Resume{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return errcode.Storage("count resumes", err)
	}
	if count >= int64(s.maxResumes) {
		return fmt.Errorf("%w: resume limit of %d reached", errcode.ErrConflict, s.maxResumes)
	}
	return nil
}

// resolveAchievements 显式 ID 时只取该用户拥有的条目，未知 ID 被静默丢弃，结果按提交顺序排列。
func resolveAchievements(tx *gorm.DB, userID uint, ids []uint) ([]database.Achievement, error) {
	var rows []database.Achievement
	if len(ids) == 0 {
		err := tx.Where("user_id = ?", userID).Order("id ASC").Find(&rows).Error
		return rows, err
	}

	ids = uniqueIDs(ids)
	if err := tx.Where("user_id = ? AND id IN ?", userID, ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return orderByIDs(rows, ids, func(a database.Achievement) uint { return a.ID }), nil
}

func resolveSkills(tx *gorm.DB, userID uint, ids []uint) ([]database.Skill, error) {
	var rows []database.Skill
	if len(ids) == 0 {
		err := tx.Where("user_id = ?", userID).Order("id ASC").Find(&rows).Error
		return rows, err
	}

	ids = uniqueIDs(ids)
	if err := tx.Where("user_id = ? AND id IN ?", userID, ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return orderByIDs(rows, ids, func(s database.Skill) uint { return s.ID }), nil
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// orderByIDs 按 ids 的顺序重排 rows，数据库返回的存储顺序不可依赖。
func orderByIDs[T any](rows []T, ids []uint, key func(T) uint) []T {
	byID := make(map[uint]T, len(rows))
	for _, row := range rows {
		byID[key(row)] = row
	}
	ordered := make([]T, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered
}

func ownedResume(db *gorm.DB, userID, resumeID uint) (*database.Resume, error) {
	var resume database.Resume
	if err := db.Where("id = ? AND user_id = ?", resumeID, userID).First(&resume).Error; err != nil {
		return nil, classify("load resume", notFound(err, "resume %d", resumeID))
	}
	return &resume, nil
}

func ensureOwned(tx *gorm.DB, model any, userID, id uint, what string) error {
	var count int64
	if err := tx.Model(model).Where("id = ? AND user_id = ?", id, userID).Count(&count).Error; err != nil {
		return errcode.Storage("check "+what, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s %d", errcode.ErrNotFound, what, id)
	}
	return nil
}

func nextDisplayOrder(tx *gorm.DB, linkModel any, resumeID uint) (int, error) {
	var next int
	if err := tx.Model(linkModel).
		Where("resume_id = ?", resumeID).
		Select("COALESCE(MAX(display_order) + 1, 0)").
		Scan(&next).Error; err != nil {
		return 0, errcode.Storage("next display order", err)
	}
	return next, nil
}

func normalizeTitle(raw, fallback string) (string, error) {
	title := strings.TrimSpace(raw)
	if title == "" {
		title = fallback
	}
	if utf8.RuneCountInString(title) > maxTitleLength {
		return "", fmt.Errorf("%w: title exceeds %d characters", errcode.ErrValidation, maxTitleLength)
	}
	return title, nil
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: "+format, append([]any{errcode.ErrNotFound}, args...)...)
	}
	return err
}

// classify 保留已归类的错误，其余（例如提交失败）归为存储错误。
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errcode.Of(err) != errcode.SystemError {
		return err
	}
	return errcode.Storage(op, err)
}
