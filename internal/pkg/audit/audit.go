package audit

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/app/repository"
)

// Event is one pipeline occurrence worth keeping
type Event struct {
	TenantID       uint
	Name           string
	JobID          string
	WebhookEventID string
	Detail         map[string]interface{}
}

// Sink appends audit events. Recording never fails the caller.
type Sink interface {
	Record(ctx context.Context, e Event)
}

// GormSink persists events to audit_logs
type GormSink struct {
	repo repository.AuditRepository
}

func NewGormSink(repo repository.AuditRepository) *GormSink {
	return &GormSink{repo: repo}
}

func (s *GormSink) Record(ctx context.Context, e Event) {
	entry := &models.AuditLog{
		TenantID:       e.TenantID,
		Event:          e.Name,
		JobID:          e.JobID,
		WebhookEventID: e.WebhookEventID,
	}
	if len(e.Detail) > 0 {
		if raw, err := json.Marshal(e.Detail); err == nil {
			entry.Detail = string(raw)
		}
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		log.Warnf("[Audit] failed to record %s for tenant %d: %v", e.Name, e.TenantID, err)
	}
}

// MemorySink collects events in memory
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (s *MemorySink) Record(_ context.Context, e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

// Events returns a copy of everything recorded so far
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

// Names returns the recorded event names in order
func (s *MemorySink) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.events))
	for _, e := range s.events {
		names = append(names, e.Name)
	}
	return names
}
