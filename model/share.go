package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ShareStatusActive  = "active"
	ShareStatusDeleted = "deleted"
	ShareStatusFailed  = "failed"
)

// GenerateShareID returns a short public identifier. The space is small
// enough that collisions are plausible, callers must retry on conflict.
func GenerateShareID() string {
	return uuid.New().String()[:8]
}

type Share struct {
	ShareID       string    `json:"share_id" gorm:"primaryKey;size:16"`
	DeviceID      string    `json:"device_id" gorm:"not null;index;size:128"`
	CreatedAt     time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time `json:"updated_at" gorm:"not null"`
	ExpiresAt     time.Time `json:"expires_at" gorm:"not null"`
	ClickCount    int       `json:"click_count" gorm:"default:0;not null"`
	MaxClicks     int       `json:"max_clicks" gorm:"default:50;not null"`
	Status        string    `json:"status" gorm:"not null;index;size:16"`
	AudioKey      string    `json:"audio_key" gorm:"size:256"`
	Lang          string    `json:"lang" gorm:"size:8"`
	Region        string    `json:"region" gorm:"size:32"`
	Platform      string    `json:"platform" gorm:"size:32"`
	ScriptVersion string    `json:"script_version" gorm:"size:16"`
}

func (s *Share) IsExpired(now time.Time) bool {
	return s.ClickCount >= s.MaxClicks || !now.Before(s.ExpiresAt)
}

func (s *Share) IsAccessible(now time.Time) bool {
	return s.Status == ShareStatusActive && !s.IsExpired(now)
}
