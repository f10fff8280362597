package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"careerResume/internal/api/middleware"
	"careerResume/internal/catalog"
	"careerResume/internal/database/dbtest"
	"careerResume/internal/resume"
	"careerResume/internal/storage"
)

const testUserHeader = "X-Test-User"

type fakeStorage struct {
	uploaded    map[string][]byte
	contentType map[string]string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{uploaded: map[string][]byte{}, contentType: map[string]string{}}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, contentType string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.uploaded[objectName] = b
	s.contentType[objectName] = contentType
	return &minio.UploadInfo{Key: objectName, Size: int64(len(b))}, nil
}

func (s *fakeStorage) GeneratePresignedURL(_ context.Context, objectKey string, _ time.Duration) (string, error) {
	return "https://example.invalid/" + objectKey, nil
}

func (s *fakeStorage) ListObjects(_ context.Context, prefix string, _ int) ([]storage.ObjectMeta, error) {
	var out []storage.ObjectMeta
	for key, body := range s.uploaded {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, storage.ObjectMeta{Key: key, Size: int64(len(body))})
		}
	}
	return out, nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	delete(s.uploaded, objectKey)
	delete(s.contentType, objectKey)
	return nil
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (e *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: "task-" + strconv.Itoa(len(e.tasks))}, nil
}

// testAuth 以请求头模拟已通过 AuthMiddleware 的用户。
func testAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.GetHeader(testUserHeader), 10, 64)
		if err != nil || id == 0 {
			AbortUnauthorized(c)
			return
		}
		c.Set(middleware.UserIDKey, uint(id))
		c.Next()
	}
}

type testServer struct {
	db       *gorm.DB
	router   *gin.Engine
	storage  *fakeStorage
	enqueuer *fakeEnqueuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := dbtest.New(t)
	s := &testServer{
		db:       db,
		router:   gin.New(),
		storage:  newFakeStorage(),
		enqueuer: &fakeEnqueuer{},
	}

	group := s.router.Group("/v1")
	group.Use(testAuth())
	registerProtectedRoutes(group, protectedHandlers{
		resumes:      NewResumeHandler(resume.NewService(db, 0)),
		achievements: NewAchievementHandler(catalog.NewAchievementStore(db), s.enqueuer),
		skills:       NewSkillHandler(catalog.NewSkillStore(db)),
		assets:       &AssetHandler{storage: s.storage, maxBytes: 1024},
	})
	return s
}

func (s *testServer) do(t *testing.T, method, path string, userID uint, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != 0 {
		req.Header.Set(testUserHeader, strconv.FormatUint(uint64(userID), 10))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func newMultipartUpload(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func (s *testServer) upload(t *testing.T, userID uint, filename string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := newMultipartUpload(t, filename, content)
	req := httptest.NewRequest(http.MethodPost, "/v1/assets/upload", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(testUserHeader, strconv.FormatUint(uint64(userID), 10))
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}
