package model

import "time"

// DeviceWallet is the per-device credit ledger. Rows are created lazily on
// the first unlock request and mutated only under a row lock at consume time.
type DeviceWallet struct {
	DeviceID  string    `json:"device_id" gorm:"primaryKey;size:128"`
	Credits   int       `json:"credits" gorm:"default:100;not null"`
	BonusUsed bool      `json:"bonus_used" gorm:"default:false;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at" gorm:"not null"`
}

// UnlockTokenUse records a consumed unlock token. Row existence alone means
// the jti is spent.
type UnlockTokenUse struct {
	JTI      string    `json:"jti" gorm:"primaryKey;column:jti;size:64"`
	DeviceID string    `json:"device_id" gorm:"not null;index;size:128"`
	Method   string    `json:"method" gorm:"not null;size:16"`
	UsedAt   time.Time `json:"used_at" gorm:"not null;autoCreateTime"`
}
