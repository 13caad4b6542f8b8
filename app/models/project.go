package models

import "time"

// Project holds a team's routing rules and reply settings. A team is expected
// to have exactly one active project.
type Project struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	TeamID                  uint      `gorm:"not null;index" json:"team_id"`
	Name                    string    `gorm:"type:varchar(150);not null" json:"name"`
	IsActive                bool      `gorm:"not null;index" json:"is_active"`
	DownstreamIntegrationID uint      `gorm:"not null" json:"downstream_integration_id"`
	ReplyEnabled            bool      `gorm:"not null;default:false" json:"reply_enabled"`
	ReplyReceivedText       string    `gorm:"type:varchar(500)" json:"reply_received_text"`
	ReplyNoMatchText        string    `gorm:"type:varchar(500)" json:"reply_no_match_text"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Project) TableName() string {
	return "projects"
}
