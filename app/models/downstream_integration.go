package models

import "time"

// DownstreamIntegration stores the credential used to write records into the
// team's workspace.
type DownstreamIntegration struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TeamID      uint      `gorm:"not null;index" json:"team_id"`
	WorkspaceID string    `gorm:"type:varchar(100)" json:"workspace_id"`
	AccessToken string    `gorm:"type:text;not null" json:"-"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (DownstreamIntegration) TableName() string {
	return "downstream_integrations"
}
