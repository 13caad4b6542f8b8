package models

import "time"

// Integration is a LINE channel connected to a team. DestinationID is the
// bot user id LINE sends as "destination" in every webhook.
type Integration struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	TeamID             uint      `gorm:"not null;index" json:"team_id"`
	Name               string    `gorm:"type:varchar(150)" json:"name"`
	DestinationID      string    `gorm:"type:varchar(64);not null;uniqueIndex" json:"destination_id"`
	ChannelSecret      string    `gorm:"type:varchar(255);not null" json:"-"`
	ChannelAccessToken string    `gorm:"type:text" json:"-"`
	IsActive           bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Integration) TableName() string {
	return "integrations"
}
