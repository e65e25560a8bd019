package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablyhq/tably-backend/pkg/metrics"
)

type stubLock struct {
	held     bool
	acquired int
	released int
	err      error
}

func (l *stubLock) Acquire(context.Context) (bool, error) {
	l.acquired++
	if l.err != nil {
		return false, l.err
	}
	return !l.held, nil
}

func (l *stubLock) Release(context.Context) error {
	l.released++
	return nil
}

type stubJob struct {
	name  string
	runs  int
	swept int
	err   error
}

func (j *stubJob) Name() string { return j.name }

func (j *stubJob) Run(context.Context) (int, error) {
	j.runs++
	return j.swept, j.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
		Metrics:  metrics.NewSweeperJobMetrics(nil),
		Interval: time.Minute,
	})
	require.NoError(t, err)
	return svc
}

func TestRunCycleExecutesAllJobs(t *testing.T) {
	lock := &stubLock{}
	first := &stubJob{name: "first", swept: 3}
	second := &stubJob{name: "second"}
	svc := newTestService(t, lock, first, second)

	require.NoError(t, svc.RunCycle(context.Background()))
	assert.Equal(t, 1, first.runs)
	assert.Equal(t, 1, second.runs)
	assert.Equal(t, 1, lock.released)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	lock := &stubLock{held: true}
	job := &stubJob{name: "noop"}
	svc := newTestService(t, lock, job)

	require.NoError(t, svc.RunCycle(context.Background()))
	assert.Equal(t, 0, job.runs)
	assert.Equal(t, 0, lock.released)
}

func TestRunCycleJobFailureDoesNotStopOthers(t *testing.T) {
	lock := &stubLock{}
	failing := &stubJob{name: "failing", err: errors.New("boom")}
	healthy := &stubJob{name: "healthy"}
	svc := newTestService(t, lock, failing, healthy)

	require.NoError(t, svc.RunCycle(context.Background()))
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, healthy.runs)
	assert.Equal(t, 1, lock.released)
}

func TestRunCycleLockErrorPropagates(t *testing.T) {
	lock := &stubLock{err: errors.New("redis down")}
	job := &stubJob{name: "noop"}
	svc := newTestService(t, lock, job)

	err := svc.RunCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, job.runs)
}

func TestNewServiceValidatesDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &stubLock{}})
	require.Error(t, err)

	_, err = NewService(ServiceParams{Logger: testLogger()})
	require.Error(t, err)
}

type memoryRedisStore struct {
	values map[string]string
}

func newMemoryRedisStore() *memoryRedisStore {
	return &memoryRedisStore{values: map[string]string{}}
}

func (m *memoryRedisStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, exists := m.values[key]; exists {
		return false, nil
	}
	m.values[key], _ = value.(string)
	return true, nil
}

func (m *memoryRedisStore) Get(_ context.Context, key string) (string, error) {
	value, exists := m.values[key]
	if !exists {
		return "", goredis.Nil
	}
	return value, nil
}

func (m *memoryRedisStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func TestRedisLockAcquireAndRelease(t *testing.T) {
	ctx := context.Background()
	store := newMemoryRedisStore()

	lock, err := NewRedisLock(store, "sweeper", time.Minute)
	require.NoError(t, err)

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	rival, err := NewRedisLock(store, "sweeper", time.Minute)
	require.NoError(t, err)
	ok, err = rival.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx))

	ok, err = rival.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLockReleaseOnlyWhenOwner(t *testing.T) {
	ctx := context.Background()
	store := newMemoryRedisStore()

	lock, err := NewRedisLock(store, "sweeper", time.Minute)
	require.NoError(t, err)
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	// Simulate TTL expiry followed by another instance taking the lock.
	store.values["sweeper"] = "someone-else"

	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "someone-else", store.values["sweeper"])
}
