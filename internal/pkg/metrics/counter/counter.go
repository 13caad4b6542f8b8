package counter

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

// FailureClass buckets downstream failures for the daily counters
type FailureClass string

const (
	FailureRateLimited FailureClass = "upstream_429"
	FailureServerError FailureClass = "upstream_5xx"
	FailureOther       FailureClass = "other"
)

const (
	fieldOK           = "ok"
	fieldFailed       = "failed"
	fieldDeadLettered = "dead_lettered"
	fieldLatency      = "last_latency_ms"

	dailyTTL = 90 * 24 * time.Hour
)

// Classify maps an HTTP status (0 when unknown) to a failure class
func Classify(status int) FailureClass {
	switch {
	case status == 429:
		return FailureRateLimited
	case status >= 500:
		return FailureServerError
	}
	return FailureOther
}

// Daily is one tenant's counters for one UTC day
type Daily struct {
	TenantID      uint   `json:"tenant_id"`
	Date          string `json:"date"`
	OK            int64  `json:"ok"`
	Failed        int64  `json:"failed"`
	DeadLettered  int64  `json:"dead_lettered"`
	Upstream429   int64  `json:"upstream_429"`
	Upstream5xx   int64  `json:"upstream_5xx"`
	LastLatencyMs int64  `json:"last_latency_ms"`
}

// Recorder receives worker outcomes. Implementations log instead of failing.
type Recorder interface {
	RecordSuccess(ctx context.Context, tenantID uint, latency time.Duration)
	RecordFailure(ctx context.Context, tenantID uint, class FailureClass, dead bool)
}

// Reader exposes stored daily counters
type Reader interface {
	Daily(ctx context.Context, tenantID uint, date string) (Daily, error)
}

// DailyKey is the Redis hash holding a tenant's counters for date (YYYY-MM-DD)
func DailyKey(tenantID uint, date string) string {
	return fmt.Sprintf("metrics:tenant:%d:%s", tenantID, date)
}

func today(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// RedisRecorder keeps per-tenant per-day hashes with a 90 day TTL
type RedisRecorder struct {
	client redis.Cmdable
	now    func() time.Time
}

func NewRedisRecorder(client redis.Cmdable) *RedisRecorder {
	return &RedisRecorder{client: client, now: time.Now}
}

func (r *RedisRecorder) RecordSuccess(ctx context.Context, tenantID uint, latency time.Duration) {
	key := DailyKey(tenantID, today(r.now()))
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, fieldOK, 1)
	pipe.HSet(ctx, key, fieldLatency, latency.Milliseconds())
	pipe.Expire(ctx, key, dailyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("[Metrics] record success for tenant %d: %v", tenantID, err)
	}
}

func (r *RedisRecorder) RecordFailure(ctx context.Context, tenantID uint, class FailureClass, dead bool) {
	key := DailyKey(tenantID, today(r.now()))
	pipe := r.client.TxPipeline()
	pipe.HIncrBy(ctx, key, fieldFailed, 1)
	if class != FailureOther {
		pipe.HIncrBy(ctx, key, string(class), 1)
	}
	if dead {
		pipe.HIncrBy(ctx, key, fieldDeadLettered, 1)
	}
	pipe.Expire(ctx, key, dailyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Warnf("[Metrics] record failure for tenant %d: %v", tenantID, err)
	}
}

func (r *RedisRecorder) Daily(ctx context.Context, tenantID uint, date string) (Daily, error) {
	if date == "" {
		date = today(r.now())
	}
	data, err := r.client.HGetAll(ctx, DailyKey(tenantID, date)).Result()
	if err != nil {
		return Daily{}, err
	}
	return dailyFromHash(tenantID, date, data), nil
}

func dailyFromHash(tenantID uint, date string, data map[string]string) Daily {
	n := func(field string) int64 {
		v, _ := strconv.ParseInt(data[field], 10, 64)
		return v
	}
	return Daily{
		TenantID:      tenantID,
		Date:          date,
		OK:            n(fieldOK),
		Failed:        n(fieldFailed),
		DeadLettered:  n(fieldDeadLettered),
		Upstream429:   n(string(FailureRateLimited)),
		Upstream5xx:   n(string(FailureServerError)),
		LastLatencyMs: n(fieldLatency),
	}
}

// MemoryRecorder keeps counters in process memory (CACHE_DRIVER=memory, tests)
type MemoryRecorder struct {
	mu   sync.Mutex
	data map[string]map[string]int64
	now  func() time.Time
}

func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{data: make(map[string]map[string]int64), now: time.Now}
}

func (m *MemoryRecorder) hash(tenantID uint) map[string]int64 {
	key := DailyKey(tenantID, today(m.now()))
	h, ok := m.data[key]
	if !ok {
		h = make(map[string]int64)
		m.data[key] = h
	}
	return h
}

func (m *MemoryRecorder) RecordSuccess(_ context.Context, tenantID uint, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hash(tenantID)
	h[fieldOK]++
	h[fieldLatency] = latency.Milliseconds()
}

func (m *MemoryRecorder) RecordFailure(_ context.Context, tenantID uint, class FailureClass, dead bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.hash(tenantID)
	h[fieldFailed]++
	if class != FailureOther {
		h[string(class)]++
	}
	if dead {
		h[fieldDeadLettered]++
	}
}

func (m *MemoryRecorder) Daily(_ context.Context, tenantID uint, date string) (Daily, error) {
	if date == "" {
		date = today(m.now())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data := make(map[string]string)
	for k, v := range m.data[DailyKey(tenantID, date)] {
		data[k] = strconv.FormatInt(v, 10)
	}
	return dailyFromHash(tenantID, date, data), nil
}
