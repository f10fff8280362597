package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"careerResume/internal/account"
	"careerResume/internal/api/middleware"
	"careerResume/internal/auth"
	"careerResume/internal/errcode"
)

const refreshTokenCookieName = "refresh_token"

// AuthHandler 处理注册、登录、刷新、退出以及个人资料。
type AuthHandler struct {
	accounts     *account.Service
	tokens       *auth.AuthService
	guard        *auth.LoginGuard
	revocations  *auth.RevocationList
	cookieDomain string
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(accounts *account.Service, tokens *auth.AuthService, guard *auth.LoginGuard, revocations *auth.RevocationList, cookieDomain string) *AuthHandler {
	return &AuthHandler{
		accounts:     accounts,
		tokens:       tokens,
		guard:        guard,
		revocations:  revocations,
		cookieDomain: strings.TrimSpace(cookieDomain),
	}
}

type registerRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	FullName string `json:"full_name" binding:"required,max=255"`
	Phone    string `json:"phone" binding:"max=64"`
	Location string `json:"location" binding:"max=255"`
	Bio      string `json:"bio" binding:"max=2000"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required,min=8,max=72"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirm_password" binding:"required,min=8,max=72"`
}

type updateProfileRequest struct {
	FullName          *string `json:"full_name" binding:"omitempty,min=1,max=255"`
	Phone             *string `json:"phone" binding:"omitempty,max=64"`
	Location          *string `json:"location" binding:"omitempty,max=255"`
	Bio               *string `json:"bio" binding:"omitempty,max=2000"`
	ProfilePictureURL *string `json:"profile_picture_url" binding:"omitempty,max=512"`
}

type tokenResponse struct {
	AccessToken        string `json:"access_token"`
	TokenType          string `json:"token_type"`
	ExpiresIn          int    `json:"expires_in"`
	MustChangePassword bool   `json:"must_change_password"`
}

// Register 创建新用户账号。
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), account.Registration{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Phone:    req.Phone,
		Location: req.Location,
		Bio:      req.Bio,
	})
	if err != nil {
		respondError(c, err, "failed to register")
		return
	}

	middleware.LoggerFromContext(c).Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusCreated, newProfileResponse(*user))
}

// Login 校验口令并返回 Token，刷新令牌写入 HttpOnly Cookie。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	email := account.NormalizeEmail(req.Email)
	log := middleware.LoggerFromContext(c).With(slog.String("email", email))

	if err := h.guard.Allow(ctx, c.ClientIP(), email); err != nil {
		log.Info("login throttled", slog.Any("error", err))
		Error(c, http.StatusTooManyRequests, err.Error())
		return
	}

	user, err := h.accounts.Authenticate(ctx, email, req.Password)
	if err != nil {
		if errors.Is(err, errcode.ErrUnauthorized) {
			log.Info("login failed", slog.Any("error", err))
			if err := h.guard.Failed(ctx, email); err != nil {
				log.Warn("record login failure", slog.Any("error", err))
			}
		}
		respondError(c, err, "failed to login")
		return
	}
	if err := h.guard.Succeeded(ctx, email); err != nil {
		log.Warn("reset login failures", slog.Any("error", err))
	}

	h.issueTokens(c, user.ID, user.MustChangePassword)
}

// Refresh 轮换刷新令牌：旧令牌作废后签发新的一对。
func (h *AuthHandler) Refresh(c *gin.Context) {
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	claims, ok := h.refreshClaims(c)
	if !ok {
		Unauthorized(c)
		return
	}

	revoked, err := h.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		log.Error("refresh token lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	if revoked {
		log.Info("refresh token reused", slog.String("jti", claims.ID))
		Unauthorized(c)
		return
	}

	user, err := h.accounts.Get(ctx, claims.UserID)
	if err != nil {
		respondError(c, err, "failed to refresh")
		return
	}
	if err := h.revocations.Revoke(ctx, claims); err != nil {
		log.Error("revoke rotated refresh token", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.issueTokens(c, user.ID, user.MustChangePassword)
}

// Logout 作废刷新令牌并清除 Cookie。
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := h.refreshClaims(c)
	if !ok {
		Unauthorized(c)
		return
	}
	if err := h.revocations.Revoke(c.Request.Context(), claims); err != nil {
		middleware.LoggerFromContext(c).Error("logout revoke token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.writeRefreshCookie(c, "", -1)
	c.Status(http.StatusOK)
}

// ChangePassword 校验当前密码并更新为新密码，同时作废当前刷新令牌。
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if req.NewPassword != req.ConfirmPassword {
		BadRequest(c, "password confirmation does not match")
		return
	}

	ctx := c.Request.Context()
	if err := h.accounts.ChangePassword(ctx, userID, req.CurrentPassword, req.NewPassword); err != nil {
		respondError(c, err, "failed to change password")
		return
	}

	if token, err := c.Cookie(refreshTokenCookieName); err == nil && token != "" {
		if claims, err := h.tokens.ValidateTokenOfType(token, auth.TokenTypeRefresh); err == nil && claims.UserID == userID {
			if err := h.revocations.Revoke(ctx, claims); err != nil {
				middleware.LoggerFromContext(c).Error("change password: revoke refresh failed", slog.Any("error", err))
				Internal(c, "internal error")
				return
			}
		}
	}

	h.issueTokens(c, userID, false)
}

// GetProfile 返回当前用户资料。
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	user, err := h.accounts.Get(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err, "failed to load profile")
		return
	}
	c.JSON(http.StatusOK, newProfileResponse(*user))
}

// UpdateProfile 修改资料字段；bio 会作为后续生成简历摘要的开头。
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	user, err := h.accounts.UpdateProfile(c.Request.Context(), userID, account.ProfileUpdate{
		FullName:          req.FullName,
		Phone:             req.Phone,
		Location:          req.Location,
		Bio:               req.Bio,
		ProfilePictureURL: req.ProfilePictureURL,
	})
	if err != nil {
		respondError(c, err, "failed to update profile")
		return
	}
	c.JSON(http.StatusOK, newProfileResponse(*user))
}

func (h *AuthHandler) issueTokens(c *gin.Context, userID uint, mustChangePassword bool) {
	pair, err := h.tokens.GenerateTokenPair(userID, mustChangePassword)
	if err != nil {
		middleware.LoggerFromContext(c).Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.writeRefreshCookie(c, pair.RefreshToken, int(h.tokens.RefreshTokenTTL().Seconds()))
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:        pair.AccessToken,
		TokenType:          "Bearer",
		ExpiresIn:          int(h.tokens.AccessTokenTTL().Seconds()),
		MustChangePassword: mustChangePassword,
	})
}

// refreshClaims 优先读取 Cookie，其次读取请求体中的 refresh_token。
func (h *AuthHandler) refreshClaims(c *gin.Context) (*auth.TokenClaims, bool) {
	token, err := c.Cookie(refreshTokenCookieName)
	if err != nil || token == "" {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err == nil {
			token = req.RefreshToken
		}
	}
	if token == "" {
		return nil, false
	}

	claims, err := h.tokens.ValidateTokenOfType(token, auth.TokenTypeRefresh)
	if err != nil {
		middleware.LoggerFromContext(c).Info("refresh token rejected", slog.Any("error", err))
		return nil, false
	}
	return claims, true
}

func (h *AuthHandler) writeRefreshCookie(c *gin.Context, value string, maxAge int) {
	cookie := &http.Cookie{
		Name:     refreshTokenCookieName,
		Value:    value,
		MaxAge:   maxAge,
		Path:     "/",
		Secure:   isHTTPS(c.Request),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Domain:   h.cookieDomain,
	}
	if maxAge > 0 {
		cookie.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	}
	http.SetCookie(c.Writer, cookie)
}

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
