package jobqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ChatFox/app/models"
)

func newTestManager(t *testing.T) (*Manager, *workerFixture) {
	t.Helper()
	f := newWorkerFixture(t, StoreConfig{MaxAttempts: 3})
	m := NewManager(f.worker, f.store, ManagerConfig{
		Interval:          time.Hour,
		StuckAfter:        10 * time.Minute,
		StuckScanInterval: time.Hour,
		PurgeInterval:     time.Hour,
		Retention:         24 * time.Hour,
	})
	return m, f
}

func TestManagerStartStop(t *testing.T) {
	m, _ := newTestManager(t)
	assert.False(t, m.IsRunning())

	m.Start()
	m.Start()
	assert.True(t, m.IsRunning())

	m.Stop()
	assert.False(t, m.IsRunning())
	m.Stop()

	m.Start()
	assert.True(t, m.IsRunning(), "restartable after stop")
	m.Stop()
}

func TestManagerTriggerRunsBatch(t *testing.T) {
	m, f := newTestManager(t)
	id := enqueue(t, f.store, "m1")

	m.Start()
	defer m.Stop()
	m.Trigger()
	m.Trigger()

	assert.Eventually(t, func() bool {
		job, err := f.store.Get(context.Background(), id)
		return err == nil && job.Status == models.JobStatusDone
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, f.writer.Calls())
}

func TestManagerRunNow(t *testing.T) {
	m, f := newTestManager(t)
	enqueue(t, f.store, "m1")
	enqueue(t, f.store, "m2")

	res, err := m.RunNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Processed)
	assert.Equal(t, 2, res.Succeeded)
}

func TestGlobalManager(t *testing.T) {
	m, _ := newTestManager(t)
	InitializeManager(m)
	t.Cleanup(func() { InitializeManager(nil) })
	assert.Same(t, m, GetManager())
}
