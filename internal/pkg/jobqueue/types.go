package jobqueue

import (
	"encoding/json"
	"fmt"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/downstream"
)

// Content providers reported by LINE for media messages
const (
	ContentProviderLine     = "line"
	ContentProviderExternal = "external"
)

type Location struct {
	Title     string  `json:"title,omitempty"`
	Address   string  `json:"address,omitempty"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Content struct {
	Provider           string `json:"provider"`
	OriginalContentURL string `json:"original_content_url,omitempty"`
}

// Payload is the immutable snapshot the worker needs to redo a write without
// re-reading tenant or rule state.
type Payload struct {
	TenantID                uint                  `json:"tenant_id"`
	TeamID                  uint                  `json:"team_id"`
	ProjectID               uint                  `json:"project_id"`
	IntegrationID           uint                  `json:"integration_id"`
	DownstreamIntegrationID uint                  `json:"downstream_integration_id"`
	DatabaseID              string                `json:"database_id"`
	MessageID               string                `json:"message_id"`
	MessageType             models.JobEventType   `json:"message_type"`
	SourceUserID            string                `json:"source_user_id,omitempty"`
	ReplyToken              string                `json:"reply_token,omitempty"`
	Text                    string                `json:"text,omitempty"`
	ProcessedText           string                `json:"processed_text"`
	Properties              downstream.Properties `json:"properties"`
	RuleID                  uint                  `json:"rule_id"`
	Location                *Location             `json:"location,omitempty"`
	Content                 *Content              `json:"content,omitempty"`
}

// DedupKey identifies a LINE message within a tenant
func DedupKey(tenantID uint, messageID string) string {
	return fmt.Sprintf("%d:%s", tenantID, messageID)
}

// DecodePayload reads the snapshot stored on a job
func DecodePayload(job *models.Job) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(job.Payload), &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload of job %s: %w", job.ID, err)
	}
	return p, nil
}
