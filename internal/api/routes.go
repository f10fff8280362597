package api

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"careerResume/internal/account"
	"careerResume/internal/api/middleware"
	"careerResume/internal/auth"
	"careerResume/internal/catalog"
	"careerResume/internal/config"
	"careerResume/internal/resume"
)

// Dependencies 汇总路由注册所需的外部依赖。
type Dependencies struct {
	DB          *gorm.DB
	Redis       *redis.Client
	AuthService *auth.AuthService
	Storage     objectStorage
	Enqueuer    taskEnqueuer
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, cfg *config.Config, deps Dependencies) {
	achievements := catalog.NewAchievementStore(deps.DB)
	skills := catalog.NewSkillStore(deps.DB)
	resumes := resume.NewService(deps.DB, cfg.Limits.MaxResumesPerUser)

	authHandler := NewAuthHandler(
		account.NewService(deps.DB),
		deps.AuthService,
		auth.NewLoginGuard(deps.Redis, cfg.Auth.LoginRateLimitPerHour, cfg.Auth.LoginLockThreshold, cfg.Auth.LoginLockTTL),
		auth.NewRevocationList(deps.Redis, cfg.Auth.RefreshTokenTTL),
		cfg.Auth.CookieDomain,
	)
	wsHandler := NewWsHandler(deps.Redis, deps.AuthService, cfg.API.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(deps.AuthService)
	passwordGate := middleware.RequirePasswordChangeCompleted()

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		protected := v1.Group("")
		protected.Use(authMiddleware, passwordGate)
		registerProtectedRoutes(protected, protectedHandlers{
			auth:         authHandler,
			resumes:      NewResumeHandler(resumes),
			achievements: NewAchievementHandler(achievements, deps.Enqueuer),
			skills:       NewSkillHandler(skills),
			assets:       NewAssetHandler(deps.Storage, cfg.Clamd.Address, cfg.Limits.MaxUploadBytes),
		})
	}
}

type protectedHandlers struct {
	auth         *AuthHandler
	resumes      *ResumeHandler
	achievements *AchievementHandler
	skills       *SkillHandler
	assets       *AssetHandler
}

// registerProtectedRoutes 挂载需要登录的路由；测试中以自定义鉴权复用。
func registerProtectedRoutes(group *gin.RouterGroup, h protectedHandlers) {
	if h.auth != nil {
		group.GET("/auth/profile", h.auth.GetProfile)
		group.PUT("/auth/profile", h.auth.UpdateProfile)
	}

	achievementGroup := group.Group("/achievements")
	{
		achievementGroup.GET("", h.achievements.ListAchievements)
		achievementGroup.GET("/stats", h.achievements.Stats)
		achievementGroup.POST("", h.achievements.CreateAchievement)
		achievementGroup.GET("/:id", h.achievements.GetAchievement)
		achievementGroup.PUT("/:id", h.achievements.UpdateAchievement)
		achievementGroup.DELETE("/:id", h.achievements.DeleteAchievement)
	}

	skillGroup := group.Group("/skills")
	{
		skillGroup.GET("", h.skills.ListSkills)
		skillGroup.POST("", h.skills.CreateSkill)
		skillGroup.POST("/bulk", h.skills.BulkAddSkills)
		skillGroup.GET("/:id", h.skills.GetSkill)
		skillGroup.PUT("/:id", h.skills.UpdateSkill)
		skillGroup.DELETE("/:id", h.skills.DeleteSkill)
	}

	resumeGroup := group.Group("/resumes")
	{
		resumeGroup.GET("", h.resumes.ListResumes)
		resumeGroup.POST("/generate", h.resumes.GenerateResume)
		resumeGroup.GET("/:id/complete", h.resumes.GetCompleteResume)
		resumeGroup.PUT("/:id", h.resumes.UpdateResume)
		resumeGroup.DELETE("/:id", h.resumes.DeleteResume)
		resumeGroup.POST("/:id/achievements", h.resumes.LinkAchievement)
		resumeGroup.DELETE("/:id/achievements/:achievement_id", h.resumes.UnlinkAchievement)
		resumeGroup.POST("/:id/skills", h.resumes.LinkSkill)
		resumeGroup.DELETE("/:id/skills/:skill_id", h.resumes.UnlinkSkill)
	}

	if h.assets != nil {
		assetGroup := group.Group("/assets")
		{
			assetGroup.POST("/upload", h.assets.UploadCertificate)
			assetGroup.GET("", h.assets.ListCertificates)
			assetGroup.GET("/view", h.assets.GetCertificateURL)
			assetGroup.DELETE("", h.assets.DeleteCertificate)
		}
	}
}
