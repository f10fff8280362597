package database

import (
	"fmt"
	"strings"

	"careerResume/internal/errcode"
)

// AchievementType 是成就的封闭枚举。
type AchievementType string

const (
	AchievementInternship AchievementType = "internship"
	AchievementProject    AchievementType = "project"
	AchievementCourse     AchievementType = "course"
	AchievementHackathon  AchievementType = "hackathon"
)

// AchievementTypes 按展示顺序列出所有成就类型。
var AchievementTypes = []AchievementType{
	AchievementInternship,
	AchievementProject,
	AchievementCourse,
	AchievementHackathon,
}

// ParseAchievementType 校验并规范化成就类型，大小写不敏感。
func ParseAchievementType(raw string) (AchievementType, error) {
	value := AchievementType(strings.ToLower(strings.TrimSpace(raw)))
	for _, t := range AchievementTypes {
		if value == t {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown achievement type %q", errcode.ErrValidation, raw)
}

// ProficiencyLevel 是技能熟练度的封闭枚举。
type ProficiencyLevel string

const (
	ProficiencyBeginner     ProficiencyLevel = "Beginner"
	ProficiencyIntermediate ProficiencyLevel = "Intermediate"
	ProficiencyAdvanced     ProficiencyLevel = "Advanced"
	ProficiencyExpert       ProficiencyLevel = "Expert"
)

var proficiencyLevels = []ProficiencyLevel{
	ProficiencyBeginner,
	ProficiencyIntermediate,
	ProficiencyAdvanced,
	ProficiencyExpert,
}

// ParseProficiencyLevel 校验熟练度，接受任意大小写并返回规范写法。
func ParseProficiencyLevel(raw string) (ProficiencyLevel, error) {
	trimmed := strings.TrimSpace(raw)
	for _, level := range proficiencyLevels {
		if strings.EqualFold(trimmed, string(level)) {
			return level, nil
		}
	}
	return "", fmt.Errorf("%w: unknown proficiency level %q", errcode.ErrValidation, raw)
}

// IsTop 表示该熟练度可进入摘要的 "Proficient in" 列表。
func (l ProficiencyLevel) IsTop() bool {
	return l == ProficiencyAdvanced || l == ProficiencyExpert
}

// TemplateType 选择简历的展示模板。
type TemplateType string

const (
	TemplateModern  TemplateType = "modern"
	TemplateClassic TemplateType = "classic"
	TemplateMinimal TemplateType = "minimal"
)

// DefaultTemplate 在未指定模板时使用。
const DefaultTemplate = TemplateModern

// ParseTemplateType 校验模板类型；空字符串返回 DefaultTemplate。
func ParseTemplateType(raw string) (TemplateType, error) {
	value := TemplateType(strings.ToLower(strings.TrimSpace(raw)))
	switch value {
	case "":
		return DefaultTemplate, nil
	case TemplateModern, TemplateClassic, TemplateMinimal:
		return value, nil
	default:
		return "", fmt.Errorf("%w: unknown template type %q", errcode.ErrValidation, raw)
	}
}
