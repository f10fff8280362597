package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"careerResume/internal/account"
	"careerResume/internal/api/middleware"
	"careerResume/internal/auth"
	"careerResume/internal/auth/authtest"
	"careerResume/internal/catalog"
	"careerResume/internal/database"
	"careerResume/internal/database/dbtest"
	"careerResume/internal/resume"
)

type authTestServer struct {
	db      *gorm.DB
	router  *gin.Engine
	service *auth.AuthService
}

func newAuthTestServer(t *testing.T) *authTestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.New(t)
	svc := authtest.NewService(t, time.Minute, time.Hour)
	kv := authtest.NewKV()
	handler := NewAuthHandler(
		account.NewService(db),
		svc,
		auth.NewLoginGuard(kv, 10, 3, time.Minute),
		auth.NewRevocationList(kv, time.Hour),
		"",
	)

	router := gin.New()
	v1 := router.Group("/v1")
	v1.POST("/auth/register", handler.Register)
	v1.POST("/auth/login", handler.Login)
	v1.POST("/auth/refresh", handler.Refresh)
	v1.POST("/auth/logout", handler.Logout)
	v1.POST("/auth/change-password", middleware.AuthMiddleware(svc), handler.ChangePassword)

	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(svc), middleware.RequirePasswordChangeCompleted())
	registerProtectedRoutes(protected, protectedHandlers{
		auth:         handler,
		resumes:      NewResumeHandler(resume.NewService(db, 0)),
		achievements: NewAchievementHandler(catalog.NewAchievementStore(db), nil),
		skills:       NewSkillHandler(catalog.NewSkillStore(db)),
	})

	return &authTestServer{db: db, router: router, service: svc}
}

func (s *authTestServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestRegisterLoginAndProfile(t *testing.T) {
	s := newAuthTestServer(t)

	rec := s.do(t, http.MethodPost, "/v1/auth/register", "",
		`{"email":" Ada@Example.com ","password":"s3cret-pass","full_name":"Ada Lovelace","bio":"Analyst"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	profile := decode[profileResponse](t, rec)
	assert.Equal(t, "ada@example.com", profile.Email)

	rec = s.do(t, http.MethodPost, "/v1/auth/register", "",
		`{"email":"ada@example.com","password":"another-pass","full_name":"Ada"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/login", "", `{"email":"ada@example.com","password":"wrong-pass"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/login", "", `{"email":"ADA@example.com","password":"s3cret-pass"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tokens := decode[tokenResponse](t, rec)
	require.NotEmpty(t, tokens.AccessToken)
	assert.False(t, tokens.MustChangePassword)

	rec = s.do(t, http.MethodGet, "/v1/auth/profile", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPut, "/v1/auth/profile", tokens.AccessToken, `{"location":" Berlin ","bio":"Engineer"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[profileResponse](t, rec)
	assert.Equal(t, "Berlin", updated.Location)
	assert.Equal(t, "Engineer", updated.Bio)
	assert.Equal(t, "Ada Lovelace", updated.FullName)

	rec = s.do(t, http.MethodPost, "/v1/resumes/generate", tokens.AccessToken, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(decode[generatedResumeResponse](t, rec).Summary, "Engineer."))
}

func TestRegister_Validation(t *testing.T) {
	s := newAuthTestServer(t)

	for _, body := range []string{
		`{"email":"not-an-email","password":"s3cret-pass","full_name":"A"}`,
		`{"email":"   ","password":"s3cret-pass","full_name":"A"}`,
		`{"email":"a@example.com","password":"short","full_name":"A"}`,
		`{"email":"a@example.com","password":"s3cret-pass"}`,
	} {
		rec := s.do(t, http.MethodPost, "/v1/auth/register", "", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestPasswordGateBlocksBusinessRoutes(t *testing.T) {
	s := newAuthTestServer(t)
	user := dbtest.User(t, s.db, "admin@example.com")
	require.NoError(t, s.db.Model(&database.User{}).Where("id = ?", user.ID).Update("must_change_password", true).Error)

	pair, err := s.service.GenerateTokenPair(user.ID, true)
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/v1/achievements", pair.AccessToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	pair, err = s.service.GenerateTokenPair(user.ID, false)
	require.NoError(t, err)
	rec = s.do(t, http.MethodGet, "/v1/achievements", pair.AccessToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/v1/achievements", pair.RefreshToken, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "refresh tokens are not accepted as access tokens")
}

func refreshCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == refreshTokenCookieName {
			return cookie
		}
	}
	t.Fatal("refresh cookie not set")
	return nil
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	s := newAuthTestServer(t)
	rec := s.do(t, http.MethodPost, "/v1/auth/register", "", `{"email":"a@example.com","password":"s3cret-pass","full_name":"A"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/login", "", `{"email":"a@example.com","password":"s3cret-pass"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	first := refreshCookie(t, rec)
	assert.True(t, first.HttpOnly)

	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+first.Value+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	second := refreshCookie(t, rec)
	assert.NotEqual(t, first.Value, second.Value)

	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+first.Value+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "rotated tokens cannot be replayed")

	rec = s.do(t, http.MethodPost, "/v1/auth/logout", "", `{"refresh_token":"`+second.Value+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, -1, refreshCookie(t, rec).MaxAge)

	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", `{"refresh_token":"`+second.Value+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/refresh", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginLockout(t *testing.T) {
	s := newAuthTestServer(t)
	rec := s.do(t, http.MethodPost, "/v1/auth/register", "", `{"email":"a@example.com","password":"s3cret-pass","full_name":"A"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	for i := 0; i < 3; i++ {
		rec = s.do(t, http.MethodPost, "/v1/auth/login", "", `{"email":"a@example.com","password":"bad-guess"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/v1/auth/login", "", `{"email":"a@example.com","password":"s3cret-pass"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestChangePasswordClearsGate(t *testing.T) {
	s := newAuthTestServer(t)
	user, password, err := account.NewService(s.db).Provision(context.Background(), "admin@example.com", "Admin")
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/v1/auth/login", "", `{"email":"admin@example.com","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	tokens := decode[tokenResponse](t, rec)
	require.True(t, tokens.MustChangePassword)

	rec = s.do(t, http.MethodGet, "/v1/skills", tokens.AccessToken, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/change-password", tokens.AccessToken,
		`{"current_password":"`+password+`","new_password":"fresh-secret","confirm_password":"mismatch-secret"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/v1/auth/change-password", tokens.AccessToken,
		`{"current_password":"`+password+`","new_password":"fresh-secret","confirm_password":"fresh-secret"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	tokens = decode[tokenResponse](t, rec)
	assert.False(t, tokens.MustChangePassword)

	rec = s.do(t, http.MethodGet, "/v1/skills", tokens.AccessToken, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var reloaded database.User
	require.NoError(t, s.db.First(&reloaded, user.ID).Error)
	assert.False(t, reloaded.MustChangePassword)
}
