package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeCertificateVerify = "certificate:verify"
)

// CertificateVerifyPayload 描述一次证书校验。CertificateKey 用于丢弃过期任务：
// 入队后成就若更换了证书，worker 不会覆盖新证书的状态。
type CertificateVerifyPayload struct {
	AchievementID  uint   `json:"achievement_id"`
	UserID         uint   `json:"user_id"`
	CertificateKey string `json:"certificate_key"`
	CorrelationID  string `json:"correlation_id"`
}

// NewCertificateVerifyTask 构造证书校验任务。
func NewCertificateVerifyTask(payload CertificateVerifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCertificateVerify, data, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// ParseCertificateVerifyPayload 解析任务载荷。
func ParseCertificateVerifyPayload(task *asynq.Task) (CertificateVerifyPayload, error) {
	var payload CertificateVerifyPayload
	err := json.Unmarshal(task.Payload(), &payload)
	return payload, err
}

// NotifyChannel 返回用户通知的 Redis 频道名，worker 发布、API 的 WebSocket 订阅。
func NotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}
