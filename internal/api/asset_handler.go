package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/dutchcoders/go-clamd"
	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/minio/minio-go/v7"

	"careerResume/internal/api/middleware"
	"careerResume/internal/storage"
)

// objectStorage 是证书上传与访问所需的存储能力，由 storage.Client 实现。
type objectStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	GeneratePresignedURL(ctx context.Context, objectKey string, duration time.Duration) (string, error)
	ListObjects(ctx context.Context, prefix string, limit int) ([]storage.ObjectMeta, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// virusScanner 扫描上传内容，返回 false 表示检出威胁。
type virusScanner interface {
	Scan(r io.Reader) (clean bool, err error)
}

// clamdScanner 通过 clamd 的 INSTREAM 命令扫描。
type clamdScanner struct {
	client *clamd.Clamd
}

func newClamdScanner(addr string) virusScanner {
	if addr == "" {
		return nil
	}
	return &clamdScanner{client: clamd.NewClamd(addr)}
}

func (s *clamdScanner) Scan(r io.Reader) (bool, error) {
	abort := make(chan bool)
	defer close(abort)

	results, err := s.client.ScanStream(r, abort)
	if err != nil {
		return false, fmt.Errorf("clamd scan stream: %w", err)
	}
	clean := true
	for result := range results {
		if result.Status != clamd.RES_OK {
			clean = false
		}
	}
	return clean, nil
}

var certificateMIMETypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

// AssetHandler 负责证书文件的上传与访问。
type AssetHandler struct {
	storage  objectStorage
	scanner  virusScanner
	maxBytes int64
}

// NewAssetHandler 返回 AssetHandler；clamdAddr 为空时跳过病毒扫描。
func NewAssetHandler(storageClient objectStorage, clamdAddr string, maxBytes int64) *AssetHandler {
	return &AssetHandler{
		storage:  storageClient,
		scanner:  newClamdScanner(clamdAddr),
		maxBytes: maxBytes,
	}
}

// UploadCertificate 校验大小与真实类型，扫描病毒后写入用户私有前缀。
func (h *AssetHandler) UploadCertificate(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	log := middleware.LoggerFromContext(c).With(slog.Uint64("user_id", uint64(userID)))

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}
	if file.Size <= 0 {
		BadRequest(c, "empty file")
		return
	}
	if h.maxBytes > 0 && file.Size > h.maxBytes {
		Error(c, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	if !storage.HasCertificateExtension(filepath.Ext(file.Filename)) {
		BadRequest(c, "unsupported file extension")
		return
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	detected, err := mimetype.DetectReader(reader)
	reader.Close()
	if err != nil {
		Internal(c, "failed to inspect file")
		return
	}
	ext, allowed := certificateMIMETypes[detected.String()]
	if !allowed {
		BadRequest(c, "unsupported file type")
		return
	}

	if h.scanner != nil {
		reader, err := file.Open()
		if err != nil {
			Internal(c, "failed to open file")
			return
		}
		clean, err := h.scanner.Scan(reader)
		reader.Close()
		if err != nil {
			log.Error("scan file", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		}
		if !clean {
			log.Warn("malicious upload rejected", slog.String("filename", file.Filename))
			BadRequest(c, "malicious file detected")
			return
		}
	}

	reader, err = file.Open()
	if err != nil {
		Internal(c, "failed to reopen file")
		return
	}
	defer reader.Close()

	objectKey := storage.NewCertificateKey(userID, ext)
	if _, err := h.storage.UploadFile(c.Request.Context(), objectKey, reader, file.Size, detected.String()); err != nil {
		log.Error("upload file", slog.Any("error", err))
		Internal(c, "failed to upload file")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"object_key": objectKey, "content_type": detected.String()})
}

// ListCertificates 列出用户上传的证书，最新的在前。
func (h *AssetHandler) ListCertificates(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "60"))
	if err != nil || limit <= 0 {
		limit = 60
	}
	if limit > 200 {
		limit = 200
	}

	objects, err := h.storage.ListObjects(c.Request.Context(), storage.UserPrefix(userID), limit)
	if err != nil {
		middleware.LoggerFromContext(c).Error("list certificates", slog.Any("error", err))
		Internal(c, "failed to list certificates")
		return
	}
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.After(objects[j].LastModified)
	})

	items := make([]gin.H, 0, len(objects))
	for _, obj := range objects {
		items = append(items, gin.H{
			"object_key":    obj.Key,
			"size":          obj.Size,
			"last_modified": obj.LastModified,
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetCertificateURL 返回证书的临时预签名 URL。
func (h *AssetHandler) GetCertificateURL(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}
	if !storage.IsUserCertificateKey(userID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	signedURL, err := h.storage.GeneratePresignedURL(c.Request.Context(), objectKey, 15*time.Minute)
	if err != nil {
		middleware.LoggerFromContext(c).Error("generate presigned url", slog.Any("error", err))
		Internal(c, "failed to generate url")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": signedURL})
}

// DeleteCertificate 删除用户自己的证书文件，对象不存在同样返回成功。
// 引用该文件的成就保留 certificate_key，下次校验会被拒绝。
func (h *AssetHandler) DeleteCertificate(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	objectKey := c.Query("key")
	if objectKey == "" {
		BadRequest(c, "missing key")
		return
	}
	if !storage.IsUserCertificateKey(userID, objectKey) {
		Forbidden(c, "access denied")
		return
	}

	if err := h.storage.DeleteObject(c.Request.Context(), objectKey); err != nil {
		middleware.LoggerFromContext(c).Error("delete certificate", slog.Any("error", err))
		Internal(c, "failed to delete file")
		return
	}
	c.Status(http.StatusNoContent)
}
