package counter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ChatFox/internal/pkg/testutil"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, FailureRateLimited, Classify(429))
	assert.Equal(t, FailureServerError, Classify(500))
	assert.Equal(t, FailureServerError, Classify(503))
	assert.Equal(t, FailureOther, Classify(400))
	assert.Equal(t, FailureOther, Classify(0))
}

func exerciseRecorder(t *testing.T, r interface {
	Recorder
	Reader
}) {
	ctx := context.Background()
	r.RecordSuccess(ctx, 7, 120*time.Millisecond)
	r.RecordSuccess(ctx, 7, 80*time.Millisecond)
	r.RecordFailure(ctx, 7, FailureRateLimited, false)
	r.RecordFailure(ctx, 7, FailureServerError, true)
	r.RecordFailure(ctx, 7, FailureOther, false)
	r.RecordSuccess(ctx, 8, time.Second)

	d, err := r.Daily(ctx, 7, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, Daily{
		TenantID:      7,
		Date:          "2025-03-01",
		OK:            2,
		Failed:        3,
		DeadLettered:  1,
		Upstream429:   1,
		Upstream5xx:   1,
		LastLatencyMs: 80,
	}, d)

	other, err := r.Daily(ctx, 7, "2025-03-02")
	require.NoError(t, err)
	assert.Zero(t, other.OK)
}

func fixedDay() time.Time {
	return time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)
}

func TestMemoryRecorder(t *testing.T) {
	r := NewMemoryRecorder()
	r.now = fixedDay
	exerciseRecorder(t, r)
}

func TestRedisRecorder(t *testing.T) {
	client := testutil.NewRedisClient(t, 12)
	r := NewRedisRecorder(client)
	r.now = fixedDay
	exerciseRecorder(t, r)

	ttl, err := client.TTL(context.Background(), DailyKey(7, "2025-03-01")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 89*24*time.Hour)
}
