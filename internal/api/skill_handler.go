package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"careerResume/internal/catalog"
)

// SkillHandler 处理技能的增删改查与批量添加。
type SkillHandler struct {
	store *catalog.SkillStore
}

// NewSkillHandler 构造 SkillHandler。
func NewSkillHandler(store *catalog.SkillStore) *SkillHandler {
	return &SkillHandler{store: store}
}

type skillRequest struct {
	Name             string `json:"name" binding:"required,max=100"`
	ProficiencyLevel string `json:"proficiency_level"`
}

type bulkSkillRequest struct {
	Names []string `json:"names" binding:"required,max=100"`
}

func (h *SkillHandler) ListSkills(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	skills, err := h.store.List(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to list skills")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": newSkillResponses(skills)})
}

func (h *SkillHandler) GetSkill(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid skill id")
		return
	}

	skill, err := h.store.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err, "failed to load skill")
		return
	}
	c.JSON(http.StatusOK, newSkillResponse(*skill))
}

func (h *SkillHandler) CreateSkill(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req skillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	skill, err := h.store.Create(c.Request.Context(), userID, catalog.SkillInput{
		Name:        req.Name,
		Proficiency: req.ProficiencyLevel,
	})
	if err != nil {
		respondError(c, err, "failed to create skill")
		return
	}
	c.JSON(http.StatusCreated, newSkillResponse(*skill))
}

func (h *SkillHandler) UpdateSkill(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid skill id")
		return
	}

	var req skillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	skill, err := h.store.Update(c.Request.Context(), userID, id, catalog.SkillInput{
		Name:        req.Name,
		Proficiency: req.ProficiencyLevel,
	})
	if err != nil {
		respondError(c, err, "failed to update skill")
		return
	}
	c.JSON(http.StatusOK, newSkillResponse(*skill))
}

// DeleteSkill 删除技能，引用它的简历关联一并删除。
func (h *SkillHandler) DeleteSkill(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid skill id")
		return
	}

	if err := h.store.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, err, "failed to delete skill")
		return
	}
	c.Status(http.StatusNoContent)
}

// BulkAddSkills 批量添加技能名称，已存在的名称会被跳过。
func (h *SkillHandler) BulkAddSkills(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req bulkSkillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	created, err := h.store.BulkAdd(c.Request.Context(), userID, req.Names)
	if err != nil {
		respondError(c, err, "failed to add skills")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"items": newSkillResponses(created)})
}
