package shared

const (
	DeviceID = "device_id"

	UnlockMethodCredit = "CREDIT"
	UnlockMethodBonus  = "BONUS"

	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeInternal            = "INTERNAL_ERROR"
	ErrCodeFileTooLarge        = "FILE_TOO_LARGE"
	ErrCodeAudioTooShort       = "AUDIO_TOO_SHORT"
	ErrCodeAudioUnsupported    = "AUDIO_UNSUPPORTED"
	ErrCodeAudioDuration       = "AUDIO_DURATION_OUT_OF_RANGE"
	ErrCodeRateLimited         = "RATE_LIMITED"
	ErrCodeUnlockRequired      = "UNLOCK_REQUIRED"
	ErrCodeInvalidUnlockMethod = "INVALID_UNLOCK_METHOD"
	ErrCodeInvalidUnlockToken  = "INVALID_UNLOCK_TOKEN"
	ErrCodeUnlockTokenExpired  = "UNLOCK_TOKEN_EXPIRED"
	ErrCodeUnlockTokenUsed     = "UNLOCK_TOKEN_USED"
	ErrCodeWalletUnavailable   = "WALLET_UNAVAILABLE"
	ErrCodeModelFailed         = "MODEL_FAILED"
	ErrCodeStorageFailed       = "STORAGE_FAILED"
	ErrCodeShareUnavailable    = "SHARE_UNAVAILABLE"
	ErrCodeShareIDExhausted    = "SHARE_ID_EXHAUSTED"
	ErrCodeAudioNotFound       = "AUDIO_NOT_FOUND"
)
