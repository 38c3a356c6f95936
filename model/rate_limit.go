package model

import "time"

// RateLimit is a fixed-window counter per (identifier, endpoint type) with
// an optional block-until penalty once the window ceiling is exceeded.
type RateLimit struct {
	ID           string     `json:"id" gorm:"primaryKey;type:text;not null"`
	Identifier   string     `json:"identifier" gorm:"not null;index;size:255"`
	EndpointType string     `json:"endpoint_type" gorm:"not null;size:50"`
	RequestCount int        `json:"request_count" gorm:"default:0;not null"`
	WindowStart  time.Time  `json:"window_start" gorm:"not null"`
	BlockedUntil *time.Time `json:"blocked_until,omitempty" gorm:"index"`
	CreatedAt    time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"not null"`
}
