package dto

import "time"

type CreateShareRequest struct {
	DeviceID    string `form:"device_id" validate:"required,min=8,max=128"`
	UnlockToken string `form:"unlock_token" validate:"required"`
	Lang        string `form:"lang" validate:"omitempty,oneof=zh en"`
	Platform    string `form:"platform" validate:"omitempty,max=32"`
	Region      string `form:"region" validate:"omitempty,max=32"`
}

func (r CreateShareRequest) Validate() error {
	return GetValidator().Struct(r)
}

type CreateShareResponse struct {
	ShareID   string    `json:"share_id"`
	ShareURL  string    `json:"share_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type ShareAccessResponse struct {
	ShareID       string    `json:"share_id"`
	Accessible    bool      `json:"accessible"`
	ClicksLeft    int       `json:"clicks_left"`
	ExpiresAt     time.Time `json:"expires_at"`
	Lang          string    `json:"lang,omitempty"`
	ScriptVersion string    `json:"script_version,omitempty"`
}
