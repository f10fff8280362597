// Package authtest 提供认证相关的测试替身。
package authtest

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"careerResume/internal/auth"
)

// NewService 使用临时生成的 RSA 密钥构造 AuthService。
func NewService(t testing.TB, accessTTL, refreshTTL time.Duration) *auth.AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	svc, err := auth.NewAuthService(privPEM, pubPEM, accessTTL, refreshTTL)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

// ErrDown 是 KV 在 Down 置位时返回的错误。
var ErrDown = errors.New("connection refused")

// KV 是 auth.KeyValue 的内存实现，只保留 TTL 的记录，不做过期。
type KV struct {
	mu     sync.Mutex
	Values map[string]string
	Counts map[string]int64
	TTLs   map[string]time.Duration
	Down   bool
}

// NewKV 返回空的 KV。
func NewKV() *KV {
	return &KV{Values: map[string]string{}, Counts: map[string]int64{}, TTLs: map[string]time.Duration{}}
}

func (m *KV) Incr(_ context.Context, key string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down {
		return redis.NewIntResult(0, ErrDown)
	}
	m.Counts[key]++
	return redis.NewIntResult(m.Counts[key], nil)
}

func (m *KV) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down {
		return redis.NewBoolResult(false, ErrDown)
	}
	m.TTLs[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (m *KV) TTL(_ context.Context, key string) *redis.DurationCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down {
		return redis.NewDurationResult(0, ErrDown)
	}
	ttl, ok := m.TTLs[key]
	if !ok {
		return redis.NewDurationResult(-2*time.Second, nil)
	}
	return redis.NewDurationResult(ttl, nil)
}

func (m *KV) Get(_ context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down {
		return redis.NewStringResult("", ErrDown)
	}
	v, ok := m.Values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *KV) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down {
		return redis.NewStatusResult("", ErrDown)
	}
	m.Values[key], _ = value.(string)
	m.TTLs[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (m *KV) Del(_ context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Down {
		return redis.NewIntResult(0, ErrDown)
	}
	for _, key := range keys {
		delete(m.Values, key)
		delete(m.Counts, key)
		delete(m.TTLs, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}
