package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"careerResume/internal/metrics"
	"careerResume/internal/resume"
)

// ResumeHandler 负责简历的生成、查询与关联维护。
type ResumeHandler struct {
	service *resume.Service
}

// NewResumeHandler 构造 ResumeHandler。
func NewResumeHandler(service *resume.Service) *ResumeHandler {
	return &ResumeHandler{service: service}
}

type generateResumeRequest struct {
	Title          string `json:"title" binding:"max=255"`
	TemplateType   string `json:"template_type"`
	AchievementIDs []uint `json:"achievement_ids"`
	SkillIDs       []uint `json:"skill_ids"`
}

type updateResumeRequest struct {
	Title        *string `json:"title"`
	TemplateType *string `json:"template_type"`
	Summary      *string `json:"summary"`
	IsDefault    *bool   `json:"is_default"`
}

// GenerateResume 组装一份新简历。未提供 ID 列表时选取用户全部成就与技能。
func (h *ResumeHandler) GenerateResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req generateResumeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			BadRequest(c, err.Error())
			return
		}
	}

	generated, err := h.service.Generate(c.Request.Context(), userID, resume.GenerateParams{
		Title:          req.Title,
		Template:       req.TemplateType,
		AchievementIDs: req.AchievementIDs,
		SkillIDs:       req.SkillIDs,
	})
	if err != nil {
		metrics.ObserveResumeGenerated(err, 0, 0)
		respondError(c, err, "failed to generate resume")
		return
	}
	metrics.ObserveResumeGenerated(nil, len(generated.Achievements), len(generated.Skills))

	c.JSON(http.StatusCreated, newGeneratedResumeResponse(generated))
}

// ListResumes 返回当前用户的全部简历。
func (h *ResumeHandler) ListResumes(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	resumes, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to list resumes")
		return
	}

	items := make([]resumeResponse, 0, len(resumes))
	for _, r := range resumes {
		items = append(items, newResumeResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetCompleteResume 返回预览所需的完整数据。
func (h *ResumeHandler) GetCompleteResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid resume id")
		return
	}

	complete, err := h.service.GetComplete(c.Request.Context(), resumeID, userID)
	if err != nil {
		respondError(c, err, "failed to load resume")
		return
	}
	c.JSON(http.StatusOK, newCompleteResumeResponse(complete))
}

// UpdateResume 修改标题、模板、摘要或默认标记。
func (h *ResumeHandler) UpdateResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid resume id")
		return
	}

	var req updateResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	updated, err := h.service.Update(c.Request.Context(), userID, resumeID, resume.UpdateParams{
		Title:     req.Title,
		Template:  req.TemplateType,
		Summary:   req.Summary,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		respondError(c, err, "failed to update resume")
		return
	}
	c.JSON(http.StatusOK, newResumeResponse(*updated))
}

// DeleteResume 删除简历及其关联。
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid resume id")
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, resumeID); err != nil {
		respondError(c, err, "failed to delete resume")
		return
	}
	c.Status(http.StatusNoContent)
}

// LinkAchievement 把成就追加到简历末尾。
func (h *ResumeHandler) LinkAchievement(c *gin.Context) {
	h.link(c, "achievement_id", h.service.LinkAchievement)
}

// UnlinkAchievement 从简历移除成就，关联不存在同样返回成功。
func (h *ResumeHandler) UnlinkAchievement(c *gin.Context) {
	h.unlink(c, "achievement_id", h.service.UnlinkAchievement)
}

// LinkSkill 把技能追加到简历末尾。
func (h *ResumeHandler) LinkSkill(c *gin.Context) {
	h.link(c, "skill_id", h.service.LinkSkill)
}

// UnlinkSkill 从简历移除技能。
func (h *ResumeHandler) UnlinkSkill(c *gin.Context) {
	h.unlink(c, "skill_id", h.service.UnlinkSkill)
}

type linkFunc func(ctx context.Context, userID, resumeID, itemID uint) error

type linkRequest struct {
	AchievementID uint `json:"achievement_id"`
	SkillID       uint `json:"skill_id"`
}

func (h *ResumeHandler) link(c *gin.Context, field string, fn linkFunc) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid resume id")
		return
	}

	var req linkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	itemID := req.AchievementID
	if field == "skill_id" {
		itemID = req.SkillID
	}
	if itemID == 0 {
		BadRequest(c, field+" is required")
		return
	}

	if err := fn(c.Request.Context(), userID, resumeID, itemID); err != nil {
		respondError(c, err, "failed to link item")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "linked"})
}

func (h *ResumeHandler) unlink(c *gin.Context, param string, fn linkFunc) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	resumeID, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid resume id")
		return
	}
	itemID, err := parseIDParam(c, param)
	if err != nil {
		BadRequest(c, "invalid "+param)
		return
	}

	if err := fn(c.Request.Context(), userID, resumeID, itemID); err != nil {
		respondError(c, err, "failed to unlink item")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "unlinked"})
}
