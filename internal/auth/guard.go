package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRateLimited   = errors.New("login rate limit exceeded")
	ErrAccountLocked = errors.New("account temporarily locked")
)

// KeyValue 是登录防护与令牌吊销用到的 Redis 命令子集。
type KeyValue interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// LoginGuard 按 IP+邮箱 做小时级限流，并在连续失败后临时锁定账号。
// Redis 不可用时放行，登录本身不依赖它。
type LoginGuard struct {
	kv            KeyValue
	perHour       int
	lockThreshold int
	lockTTL       time.Duration
}

// NewLoginGuard 构造 LoginGuard。perHour 或 lockThreshold 为 0 时关闭对应检查。
func NewLoginGuard(kv KeyValue, perHour, lockThreshold int, lockTTL time.Duration) *LoginGuard {
	return &LoginGuard{
		kv:            kv,
		perHour:       perHour,
		lockThreshold: lockThreshold,
		lockTTL:       lockTTL,
	}
}

func lockKey(email string) string { return "lock:login:" + email }
func failureKey(email string) string { return "lock:login:fail:" + email }

// Allow 在校验口令前调用，计入一次尝试。
func (g *LoginGuard) Allow(ctx context.Context, ip, email string) error {
	if g.perHour > 0 {
		rateKey := fmt.Sprintf("rate:login:%s:%s:%s", ip, email, time.Now().UTC().Format("2006010215"))
		count, err := incrWithTTL(ctx, g.kv, rateKey, time.Hour)
		if err == nil && count > int64(g.perHour) {
			return ErrRateLimited
		}
	}
	if ttl, err := g.kv.TTL(ctx, lockKey(email)).Result(); err == nil && ttl > 0 {
		return ErrAccountLocked
	}
	return nil
}

// Failed 记录一次失败，达到阈值后写入锁。
func (g *LoginGuard) Failed(ctx context.Context, email string) error {
	count, err := incrWithTTL(ctx, g.kv, failureKey(email), g.lockTTL)
	if err != nil {
		return err
	}
	if g.lockThreshold > 0 && count >= int64(g.lockThreshold) {
		return g.kv.Set(ctx, lockKey(email), "1", g.lockTTL).Err()
	}
	return nil
}

// Succeeded 清空失败计数。
func (g *LoginGuard) Succeeded(ctx context.Context, email string) error {
	return g.kv.Del(ctx, failureKey(email)).Err()
}

func incrWithTTL(ctx context.Context, kv KeyValue, key string, ttl time.Duration) (int64, error) {
	count, err := kv.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 && ttl > 0 {
		_ = kv.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

const revokedRefreshKeyPrefix = "auth:refresh:blacklist:"

// RevocationList 记录已作废的刷新令牌 jti，条目随令牌过期。
type RevocationList struct {
	kv         KeyValue
	defaultTTL time.Duration
}

// NewRevocationList 构造 RevocationList；defaultTTL 用于缺少过期时间的令牌。
func NewRevocationList(kv KeyValue, defaultTTL time.Duration) *RevocationList {
	return &RevocationList{kv: kv, defaultTTL: defaultTTL}
}

// Revoke 作废 claims 对应的刷新令牌。
func (r *RevocationList) Revoke(ctx context.Context, claims *TokenClaims) error {
	if claims == nil || claims.ID == "" {
		return fmt.Errorf("%w: refresh token without jti", ErrInvalidToken)
	}
	ttl := r.defaultTTL
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	if err := r.kv.Set(ctx, revokedRefreshKeyPrefix+claims.ID, "revoked", ttl).Err(); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// IsRevoked 查询 jti 是否已作废。
func (r *RevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := r.kv.Get(ctx, revokedRefreshKeyPrefix+jti).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, fmt.Errorf("lookup revoked refresh token: %w", err)
	}
}
