package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"careerResume/internal/catalog"
	"careerResume/internal/errcode"
	"careerResume/internal/storage"
	"careerResume/internal/tasks"
)

// ObjectStater 读取对象元数据，由 storage.Client 实现。
type ObjectStater interface {
	StatObject(ctx context.Context, objectKey string) (storage.ObjectMeta, error)
}

// CertificateTaskHandler 消费证书校验任务：确认对象存在且类型可接受后置位 verified，
// 并把结果推送给用户。
type CertificateTaskHandler struct {
	achievements *catalog.AchievementStore
	objects      ObjectStater
	publisher    Publisher
	logger       *slog.Logger
}

// NewCertificateTaskHandler 创建任务处理器。
func NewCertificateTaskHandler(achievements *catalog.AchievementStore, objects ObjectStater, publisher Publisher, logger *slog.Logger) *CertificateTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CertificateTaskHandler{
		achievements: achievements,
		objects:      objects,
		publisher:    publisher,
		logger:       logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *CertificateTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	payload, err := tasks.ParseCertificateVerifyPayload(t)
	if err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("achievement_id", uint64(payload.AchievementID)),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)

	achievement, err := h.achievements.FindByID(ctx, payload.AchievementID)
	if err != nil {
		if errors.Is(err, errcode.ErrNotFound) {
			log.Warn("achievement not found, skipping task")
			return nil
		}
		log.Error("query achievement failed", slog.Any("error", err))
		return err
	}
	if achievement.UserID != payload.UserID || achievement.CertificateKey != payload.CertificateKey {
		log.Info("certificate changed since enqueue, skipping task")
		return nil
	}

	notify := CertificateNotifyMessage{
		AchievementID:  achievement.ID,
		CertificateKey: payload.CertificateKey,
		CorrelationID:  payload.CorrelationID,
	}

	defer func() {
		if retErr == nil || !isFinalAsynqAttempt(ctx) {
			return
		}
		failed := notify
		failed.Status = StatusError
		failed.ErrorCode = errcode.SystemError
		failed.ErrorMessage = strings.TrimSpace(retErr.Error())
		if err := publishNotify(ctx, h.publisher, payload.UserID, failed); err != nil {
			log.Error("publish error notification failed", slog.Any("error", err))
		}
	}()

	verdict, err := h.inspect(ctx, payload)
	if err != nil {
		log.Error("inspect certificate failed", slog.Any("error", err))
		return err
	}

	written, err := h.achievements.SetVerified(ctx, achievement.ID, payload.CertificateKey, verdict.code == errcode.OK)
	if err != nil {
		log.Error("update verified flag failed", slog.Any("error", err))
		return err
	}
	if !written {
		log.Info("certificate changed during verification, dropping result")
		return nil
	}

	notify.Status = StatusVerified
	notify.ErrorCode = verdict.code
	notify.ErrorMessage = verdict.reason
	if verdict.code != errcode.OK {
		notify.Status = StatusRejected
		log.Warn("certificate rejected", slog.String("reason", verdict.reason))
	}
	if err := publishNotify(ctx, h.publisher, payload.UserID, notify); err != nil {
		// 结果已落库，通知丢失不重试。
		log.Error("publish redis notification failed", slog.Any("error", err))
		return nil
	}

	log.Info("certificate verification completed", slog.String("status", notify.Status))
	return nil
}

type verdict struct {
	code   int
	reason string
}

var acceptedContentTypes = map[string]struct{}{
	"application/pdf": {},
	"image/png":       {},
	"image/jpeg":      {},
}

func (h *CertificateTaskHandler) inspect(ctx context.Context, payload tasks.CertificateVerifyPayload) (verdict, error) {
	if !storage.IsUserCertificateKey(payload.UserID, payload.CertificateKey) {
		return verdict{code: errcode.ValidationFailed, reason: "certificate key outside user namespace"}, nil
	}

	meta, err := h.objects.StatObject(ctx, payload.CertificateKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return verdict{code: errcode.ResourceMissing, reason: "certificate object not found"}, nil
		}
		return verdict{}, err
	}
	if meta.Size == 0 {
		return verdict{code: errcode.ValidationFailed, reason: "certificate object is empty"}, nil
	}
	contentType := strings.ToLower(strings.TrimSpace(strings.SplitN(meta.ContentType, ";", 2)[0]))
	if _, ok := acceptedContentTypes[contentType]; !ok {
		return verdict{code: errcode.ValidationFailed, reason: fmt.Sprintf("unsupported content type %q", meta.ContentType)}, nil
	}
	return verdict{code: errcode.OK}, nil
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
