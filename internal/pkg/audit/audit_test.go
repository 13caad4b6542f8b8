package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/app/repository"
	"github.com/ManuelReschke/ChatFox/internal/pkg/testutil"
)

func TestGormSinkPersistsDetail(t *testing.T) {
	db := testutil.NewTestDB(t)
	repo := repository.NewAuditRepository(db)
	sink := NewGormSink(repo)

	sink.Record(context.Background(), Event{
		TenantID:       3,
		Name:           models.AuditJobEnqueued,
		JobID:          "job-1",
		WebhookEventID: "3:m1",
		Detail:         map[string]interface{}{"rule_id": 9},
	})

	entries, err := repo.ListByTenant(context.Background(), 3, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "job-1", entries[0].JobID)
	assert.Equal(t, "3:m1", entries[0].WebhookEventID)
	assert.JSONEq(t, `{"rule_id":9}`, entries[0].Detail)
}

func TestMemorySink(t *testing.T) {
	var sink MemorySink
	sink.Record(context.Background(), Event{Name: models.AuditWebhookReceived})
	sink.Record(context.Background(), Event{Name: models.AuditNoMatch})
	assert.Equal(t, []string{models.AuditWebhookReceived, models.AuditNoMatch}, sink.Names())
	assert.Len(t, sink.Events(), 2)
}
