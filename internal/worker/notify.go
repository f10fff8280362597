package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"careerResume/internal/tasks"
)

// 证书校验结果状态。
const (
	StatusVerified = "verified"
	StatusRejected = "rejected"
	StatusError    = "error"
)

// CertificateNotifyMessage 通过 Redis Pub/Sub 转发给前端 WebSocket。
// 字段名与前端解析保持一致。
type CertificateNotifyMessage struct {
	Event          string `json:"event"`
	Status         string `json:"status"`
	AchievementID  uint   `json:"achievement_id"`
	CertificateKey string `json:"certificate_key"`
	CorrelationID  string `json:"correlation_id"`
	ErrorCode      int    `json:"error_code"`
	ErrorMessage   string `json:"error_message"`
}

const certificateEvent = "certificate_verification"

// Publisher 是 redis.Client 的发布子集。
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

func publishNotify(ctx context.Context, publisher Publisher, userID uint, msg CertificateNotifyMessage) error {
	msg.Event = certificateEvent
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := tasks.NotifyChannel(userID)
	if err := publisher.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
