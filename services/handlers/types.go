package handlers

import (
	"context"
	"io"
	"time"

	"github.com/scamvax-labs/scamvax_api/dto"
	"github.com/scamvax-labs/scamvax_api/model"
)

type ShareServiceInterface interface {
	CreateChallenge(ctx context.Context, req dto.CreateShareRequest, audio []byte, filenameHint, mimeHint string) (*dto.CreateShareResponse, error)
	Access(ctx context.Context, shareID string) (*model.Share, error)
	Get(ctx context.Context, shareID string) (*model.Share, error)
	StreamAudio(ctx context.Context, shareID string) (io.ReadCloser, error)
	ShareURL(shareID string) string
}

type UnlockServiceInterface interface {
	Issue(ctx context.Context, deviceID, method string) (string, error)
	TokenTTL() time.Duration
}

type AudioServiceInterface interface {
	MaxSizeBytes() int64
	MaxSizeMB() int
}
