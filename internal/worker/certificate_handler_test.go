package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"careerResume/internal/catalog"
	"careerResume/internal/database/dbtest"
	"careerResume/internal/errcode"
	"careerResume/internal/storage"
	"careerResume/internal/tasks"
)

type fakeObjects struct {
	objects map[string]storage.ObjectMeta
	err     error
}

func (f *fakeObjects) StatObject(_ context.Context, key string) (storage.ObjectMeta, error) {
	if f.err != nil {
		return storage.ObjectMeta{}, f.err
	}
	meta, ok := f.objects[key]
	if !ok {
		return storage.ObjectMeta{}, fmt.Errorf("stat object %q: %w", key, storage.ErrObjectNotFound)
	}
	return meta, nil
}

type published struct {
	channel string
	msg     CertificateNotifyMessage
}

type fakePublisher struct {
	sent []published
}

func (p *fakePublisher) Publish(_ context.Context, channel string, message any) *redis.IntCmd {
	var msg CertificateNotifyMessage
	_ = json.Unmarshal(message.([]byte), &msg)
	p.sent = append(p.sent, published{channel: channel, msg: msg})
	return redis.NewIntResult(1, nil)
}

type harness struct {
	store     *catalog.AchievementStore
	objects   *fakeObjects
	publisher *fakePublisher
	handler   *CertificateTaskHandler
	userID    uint
}

func newHarness(t *testing.T) harness {
	t.Helper()
	db := dbtest.New(t)
	user := dbtest.User(t, db, "worker@example.com")
	h := harness{
		store:     catalog.NewAchievementStore(db),
		objects:   &fakeObjects{objects: map[string]storage.ObjectMeta{}},
		publisher: &fakePublisher{},
		userID:    user.ID,
	}
	h.handler = NewCertificateTaskHandler(h.store, h.objects, h.publisher, nil)
	return h
}

func (h harness) createAchievement(t *testing.T, key string) uint {
	t.Helper()
	a, err := h.store.Create(context.Background(), h.userID, catalog.AchievementInput{
		Type: "course", Title: "Distributed systems", CertificateKey: key,
	})
	require.NoError(t, err)
	return a.ID
}

func (h harness) task(t *testing.T, achievementID uint, key string) *asynq.Task {
	t.Helper()
	task, err := tasks.NewCertificateVerifyTask(tasks.CertificateVerifyPayload{
		AchievementID:  achievementID,
		UserID:         h.userID,
		CertificateKey: key,
		CorrelationID:  "cid-1",
	})
	require.NoError(t, err)
	return task
}

func (h harness) verified(t *testing.T, id uint) bool {
	t.Helper()
	a, err := h.store.FindByID(context.Background(), id)
	require.NoError(t, err)
	return a.Verified
}

func TestCertificateTask_VerifiesExistingObject(t *testing.T) {
	h := newHarness(t)
	key := storage.UserPrefix(h.userID) + "cert.pdf"
	h.objects.objects[key] = storage.ObjectMeta{Key: key, Size: 1024, ContentType: "application/pdf"}
	id := h.createAchievement(t, key)

	require.NoError(t, h.handler.ProcessTask(context.Background(), h.task(t, id, key)))

	assert.True(t, h.verified(t, id))
	require.Len(t, h.publisher.sent, 1)
	sent := h.publisher.sent[0]
	assert.Equal(t, tasks.NotifyChannel(h.userID), sent.channel)
	assert.Equal(t, StatusVerified, sent.msg.Status)
	assert.Equal(t, errcode.OK, sent.msg.ErrorCode)
	assert.Equal(t, id, sent.msg.AchievementID)
	assert.Equal(t, "cid-1", sent.msg.CorrelationID)
}

func TestCertificateTask_RejectsMissingOrInvalidObjects(t *testing.T) {
	tests := []struct {
		name     string
		meta     *storage.ObjectMeta
		wantCode int
	}{
		{name: "missing", meta: nil, wantCode: errcode.ResourceMissing},
		{name: "empty", meta: &storage.ObjectMeta{Size: 0, ContentType: "application/pdf"}, wantCode: errcode.ValidationFailed},
		{name: "html", meta: &storage.ObjectMeta{Size: 10, ContentType: "text/html"}, wantCode: errcode.ValidationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			key := storage.UserPrefix(h.userID) + "cert.png"
			if tt.meta != nil {
				h.objects.objects[key] = *tt.meta
			}
			id := h.createAchievement(t, key)

			require.NoError(t, h.handler.ProcessTask(context.Background(), h.task(t, id, key)))

			assert.False(t, h.verified(t, id))
			require.Len(t, h.publisher.sent, 1)
			assert.Equal(t, StatusRejected, h.publisher.sent[0].msg.Status)
			assert.Equal(t, tt.wantCode, h.publisher.sent[0].msg.ErrorCode)
		})
	}
}

func TestCertificateTask_SkipsStaleTasks(t *testing.T) {
	h := newHarness(t)
	current := storage.UserPrefix(h.userID) + "new.pdf"
	h.objects.objects[current] = storage.ObjectMeta{Size: 10, ContentType: "application/pdf"}
	id := h.createAchievement(t, current)

	stale := storage.UserPrefix(h.userID) + "old.pdf"
	require.NoError(t, h.handler.ProcessTask(context.Background(), h.task(t, id, stale)))
	require.NoError(t, h.handler.ProcessTask(context.Background(), h.task(t, id+100, current)))

	assert.False(t, h.verified(t, id))
	assert.Empty(t, h.publisher.sent)
}

func TestCertificateTask_TransientErrorsRetry(t *testing.T) {
	h := newHarness(t)
	key := storage.UserPrefix(h.userID) + "cert.pdf"
	id := h.createAchievement(t, key)
	h.objects.err = errors.New("connection reset")

	err := h.handler.ProcessTask(context.Background(), h.task(t, id, key))
	require.Error(t, err)
	assert.False(t, h.verified(t, id))
	assert.Empty(t, h.publisher.sent, "non-final attempts stay silent")
}

func TestCertificateTask_BadPayloadSkipsRetry(t *testing.T) {
	h := newHarness(t)
	err := h.handler.ProcessTask(context.Background(), asynq.NewTask(tasks.TypeCertificateVerify, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
