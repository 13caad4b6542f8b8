package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	MatcherPrefix   = "prefix"
	MatcherKeyword  = "keyword"
	MatcherContains = "contains"
	MatcherRegex    = "regex"
)

// Rule routes a matching message to a downstream database. FieldMapping is a
// JSON document describing how the processed text becomes record properties.
type Rule struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ProjectID     uint      `gorm:"not null;index:idx_rules_project_priority,priority:1" json:"project_id" validate:"required"`
	Name          string    `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Priority      int       `gorm:"not null;index:idx_rules_project_priority,priority:2" json:"priority"`
	MatcherType   string    `gorm:"type:varchar(20);not null" json:"matcher_type" validate:"required,oneof=prefix keyword contains regex"`
	Pattern       string    `gorm:"type:varchar(500);not null;default:''" json:"pattern" validate:"max=500"`
	CaseSensitive bool      `gorm:"not null;default:false" json:"case_sensitive"`
	RegexFlags    string    `gorm:"type:varchar(10);not null;default:''" json:"regex_flags" validate:"max=10"`
	DatabaseID    string    `gorm:"type:varchar(100);not null" json:"database_id" validate:"required,max=100"`
	FieldMapping  string    `gorm:"type:text" json:"field_mapping"`
	RemovePattern bool      `gorm:"not null" json:"remove_pattern"`
	IsActive      bool      `gorm:"not null;index" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Rule) TableName() string {
	return "rules"
}

func (r *Rule) Validate() error {
	v := validator.New()

	return v.Struct(r)
}
