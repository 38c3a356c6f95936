package dto

type IssueUnlockRequest struct {
	DeviceID string `json:"device_id" validate:"required,min=8,max=128"`
	Method   string `json:"method" validate:"required,oneof=CREDIT BONUS credit bonus"`
}

func (r IssueUnlockRequest) Validate() error {
	return GetValidator().Struct(r)
}

type IssueUnlockResponse struct {
	UnlockToken string `json:"unlock_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// UnlockTokenPayload is the signed bundle inside an unlock token. Field
// names stay short because the token travels in a form field.
type UnlockTokenPayload struct {
	Version  int    `json:"v"`
	JTI      string `json:"jti"`
	DeviceID string `json:"did"`
	Method   string `json:"m"`
	Expiry   int64  `json:"exp"`
}
