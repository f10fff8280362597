package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"careerResume/internal/api/middleware"
	"careerResume/internal/catalog"
	"careerResume/internal/database"
	"careerResume/internal/storage"
	"careerResume/internal/tasks"
)

// taskEnqueuer 是 asynq.Client 的入队子集。
type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AchievementHandler 处理成就的增删改查，带证书的成就会触发异步校验。
type AchievementHandler struct {
	store    *catalog.AchievementStore
	enqueuer taskEnqueuer
}

// NewAchievementHandler 构造 AchievementHandler；enqueuer 为 nil 时不触发校验。
func NewAchievementHandler(store *catalog.AchievementStore, enqueuer taskEnqueuer) *AchievementHandler {
	return &AchievementHandler{store: store, enqueuer: enqueuer}
}

type achievementRequest struct {
	Type           string   `json:"type" binding:"required"`
	Title          string   `json:"title" binding:"required,max=255"`
	Organization   string   `json:"organization" binding:"max=255"`
	Description    string   `json:"description"`
	StartDate      *string  `json:"start_date"`
	EndDate        *string  `json:"end_date"`
	Status         string   `json:"status" binding:"max=32"`
	CertificateKey string   `json:"certificate_key"`
	SkillsUsed     []string `json:"skills_used"`
}

func (r achievementRequest) toInput(userID uint) (catalog.AchievementInput, error) {
	start, err := parseDate("start_date", r.StartDate)
	if err != nil {
		return catalog.AchievementInput{}, err
	}
	end, err := parseDate("end_date", r.EndDate)
	if err != nil {
		return catalog.AchievementInput{}, err
	}
	key := strings.TrimSpace(r.CertificateKey)
	if key != "" && !storage.IsUserCertificateKey(userID, key) {
		return catalog.AchievementInput{}, fmt.Errorf("invalid certificate_key")
	}
	return catalog.AchievementInput{
		Type:           r.Type,
		Title:          r.Title,
		Organization:   r.Organization,
		Description:    r.Description,
		StartDate:      start,
		EndDate:        end,
		Status:         r.Status,
		CertificateKey: key,
		SkillsUsed:     r.SkillsUsed,
	}, nil
}

func parseDate(field string, raw *string) (*time.Time, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(*raw))
	if err != nil {
		return nil, fmt.Errorf("%s must be formatted as YYYY-MM-DD", field)
	}
	return &t, nil
}

// ListAchievements 返回成就列表，可用 ?type= 过滤。
func (h *AchievementHandler) ListAchievements(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	items, err := h.store.List(c.Request.Context(), userID, c.Query("type"))
	if err != nil {
		respondError(c, err, "failed to list achievements")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": newAchievementResponses(items)})
}

// GetAchievement 返回单条成就。
func (h *AchievementHandler) GetAchievement(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid achievement id")
		return
	}

	achievement, err := h.store.Get(c.Request.Context(), userID, id)
	if err != nil {
		respondError(c, err, "failed to load achievement")
		return
	}
	c.JSON(http.StatusOK, newAchievementResponse(*achievement))
}

// CreateAchievement 新建成就。
func (h *AchievementHandler) CreateAchievement(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req achievementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	input, err := req.toInput(userID)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	achievement, err := h.store.Create(c.Request.Context(), userID, input)
	if err != nil {
		respondError(c, err, "failed to create achievement")
		return
	}
	if achievement.CertificateKey != "" {
		h.enqueueVerification(c, achievement)
	}
	c.JSON(http.StatusCreated, newAchievementResponse(*achievement))
}

// UpdateAchievement 整体更新成就；证书变化时重新排队校验。
func (h *AchievementHandler) UpdateAchievement(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid achievement id")
		return
	}

	var req achievementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	input, err := req.toInput(userID)
	if err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	before, err := h.store.Get(ctx, userID, id)
	if err != nil {
		respondError(c, err, "failed to load achievement")
		return
	}

	achievement, err := h.store.Update(ctx, userID, id, input)
	if err != nil {
		respondError(c, err, "failed to update achievement")
		return
	}
	if achievement.CertificateKey != "" && achievement.CertificateKey != before.CertificateKey {
		h.enqueueVerification(c, achievement)
	}
	c.JSON(http.StatusOK, newAchievementResponse(*achievement))
}

// DeleteAchievement 删除成就及其简历关联。
func (h *AchievementHandler) DeleteAchievement(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		BadRequest(c, "invalid achievement id")
		return
	}

	if err := h.store.Delete(c.Request.Context(), userID, id); err != nil {
		respondError(c, err, "failed to delete achievement")
		return
	}
	c.Status(http.StatusNoContent)
}

// Stats 返回按类型统计的成就数量，缺失的类型计为 0。
func (h *AchievementHandler) Stats(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	stats, err := h.store.Stats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to load achievement stats")
		return
	}

	byType := make(map[string]int64, len(database.AchievementTypes))
	for _, t := range database.AchievementTypes {
		byType[string(t)] = 0
	}
	var total int64
	for _, s := range stats {
		byType[string(s.Type)] = s.Count
		total += s.Count
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "by_type": byType})
}

// 入队失败不影响成就写入，用户可通过重新保存触发校验。
func (h *AchievementHandler) enqueueVerification(c *gin.Context, achievement *database.Achievement) {
	if h.enqueuer == nil {
		return
	}
	log := middleware.LoggerFromContext(c).With(slog.Uint64("achievement_id", uint64(achievement.ID)))

	task, err := tasks.NewCertificateVerifyTask(tasks.CertificateVerifyPayload{
		AchievementID:  achievement.ID,
		UserID:         achievement.UserID,
		CertificateKey: achievement.CertificateKey,
		CorrelationID:  middleware.GetCorrelationID(c),
	})
	if err != nil {
		log.Error("build certificate task failed", slog.Any("error", err))
		return
	}
	info, err := h.enqueuer.EnqueueContext(c.Request.Context(), task)
	if err != nil {
		log.Error("enqueue certificate task failed", slog.Any("error", err))
		return
	}
	log.Info("certificate verification enqueued", slog.String("task_id", info.ID))
}
