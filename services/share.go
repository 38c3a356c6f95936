package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/scamvax-labs/scamvax_api/dto"
	"github.com/scamvax-labs/scamvax_api/model"
	"github.com/scamvax-labs/scamvax_api/shared"
)

// ShareService owns the ephemeral-share lifecycle: creation with
// upload-before-insert, atomic click counting, dual expiry and idempotent
// destruction of both the row and its stored audio.
type ShareService struct {
	appContext.DefaultService

	db       *gorm.DB
	dbErr    func(error) error
	blobs    BlobStore
	redisSvc *RedisService

	unlockSvc *UnlockService
	audioSvc  AudioTranscoder
	synth     VoiceSynthesizer

	baseURL        string
	ttl            time.Duration
	maxClicks      int
	ratePerDevice  int
	rateWindow     time.Duration
	createAttempts int
}

const SHARE_SVC = "share_svc"

// Tombstone cache entries let the audio endpoint skip the database for
// shares that were just destroyed.
const shareTombstoneTTL = 10 * time.Minute

func shareTombstoneKey(shareID string) string {
	return "share:dead:" + shareID
}

type ShareMetadata struct {
	Lang     string
	Platform string
	Region   string
}

func (svc ShareService) Id() string {
	return SHARE_SVC
}

func (svc *ShareService) Configure(ctx *appContext.Context) error {
	svc.baseURL = os.Getenv("BASE_URL")
	if svc.baseURL == "" {
		svc.baseURL = "http://localhost:8000"
	}

	svc.ttl = time.Duration(envInt("SHARE_TTL_HOURS", 72)) * time.Hour
	svc.maxClicks = envInt("SHARE_MAX_CLICKS", 50)
	svc.ratePerDevice = envInt("RATE_LIMIT_PER_DEVICE", 5)
	svc.rateWindow = time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 3600)) * time.Second
	svc.createAttempts = 3

	return svc.DefaultService.Configure(ctx)
}

func (svc *ShareService) Start() error {
	dbSvc := svc.Service(DBServiceID()).(DBProvider)
	svc.db = dbSvc.Db()
	svc.dbErr = dbSvc.HandleError
	svc.blobs = svc.Service(MINIO_SVC).(BlobStore)
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	svc.unlockSvc = svc.Service(UNLOCK_SVC).(*UnlockService)
	svc.audioSvc = svc.Service(AUDIO_SVC).(AudioTranscoder)
	svc.synth = svc.Service(SYNTHESIZER_SVC).(VoiceSynthesizer)
	return nil
}

// CreateChallenge is the full publish flow: validate, rate-limit, spend the
// unlock token, synthesize, store, persist. The token is consumed only once
// the cheap checks have passed; a synthesis failure after that point is a
// genuine spent-but-unfulfilled case and leaves a failed row for audit
// instead of vanishing.
func (svc *ShareService) CreateChallenge(ctx context.Context, req dto.CreateShareRequest, audio []byte, filenameHint, mimeHint string) (*dto.CreateShareResponse, error) {
	allowed, err := svc.AllowCreate(ctx, req.DeviceID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, shared.NewRateLimitError("Creation rate exceeded, please try again later")
	}

	normalized, err := svc.audioSvc.Normalize(audio, filenameHint, mimeHint)
	if err != nil {
		return nil, err
	}

	lang := req.Lang
	if lang == "" {
		lang = "zh"
	}
	meta := ShareMetadata{Lang: lang, Platform: req.Platform, Region: req.Region}

	if _, err := svc.unlockSvc.Consume(ctx, req.DeviceID, req.UnlockToken); err != nil {
		return nil, err
	}

	fakeAudio, err := svc.synth.Clone(ctx, normalized, lang)
	if err != nil {
		synthesisFailuresTotal.Inc()
		svc.recordFailure(ctx, req.DeviceID, meta)
		return nil, err
	}

	share, err := svc.Create(ctx, req.DeviceID, fakeAudio, meta)
	if err != nil {
		svc.recordFailure(ctx, req.DeviceID, meta)
		return nil, err
	}

	return &dto.CreateShareResponse{
		ShareID:   share.ShareID,
		ShareURL:  svc.ShareURL(share.ShareID),
		ExpiresAt: share.ExpiresAt,
	}, nil
}

// recordFailure leaves an audit row for a creation that spent a token but
// produced nothing servable. Failed rows never count against the rate
// window and the sweep ignores them.
func (svc *ShareService) recordFailure(ctx context.Context, deviceID string, meta ShareMetadata) {
	now := time.Now().UTC()
	row := &model.Share{
		ShareID:       model.GenerateShareID(),
		DeviceID:      deviceID,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now,
		MaxClicks:     svc.maxClicks,
		Status:        model.ShareStatusFailed,
		Lang:          meta.Lang,
		Platform:      meta.Platform,
		Region:        meta.Region,
		ScriptVersion: ScriptVersion,
	}
	if err := svc.db.WithContext(ctx).Create(row).Error; err != nil {
		log.WithFields(log.Fields{
			"device_id": deviceID,
			"error":     err,
		}).Error("Failed to record failed creation")
	}
}

// Create uploads the synthesized audio before inserting the row, so a
// failed insert never leaves a reachable share. On an id collision the
// orphaned object is removed before retrying under a fresh id.
func (svc *ShareService) Create(ctx context.Context, deviceID string, fakeAudio []byte, meta ShareMetadata) (*model.Share, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(svc.ttl)

	for attempt := 1; attempt <= svc.createAttempts; attempt++ {
		shareID := model.GenerateShareID()

		audioKey, err := svc.blobs.UploadAudio(ctx, shareID, fakeAudio)
		if err != nil {
			log.WithFields(log.Fields{
				"share_id": shareID,
				"error":    err,
			}).Error("Audio upload failed")
			return nil, shared.NewServiceUnavailableError(err, shared.ErrCodeStorageFailed, "Audio storage failed, please retry")
		}

		share := &model.Share{
			ShareID:       shareID,
			DeviceID:      deviceID,
			CreatedAt:     now,
			UpdatedAt:     now,
			ExpiresAt:     expiresAt,
			ClickCount:    0,
			MaxClicks:     svc.maxClicks,
			Status:        model.ShareStatusActive,
			AudioKey:      audioKey,
			Lang:          meta.Lang,
			Platform:      meta.Platform,
			Region:        meta.Region,
			ScriptVersion: ScriptVersion,
		}

		err = svc.db.Create(share).Error
		if err == nil {
			sharesCreatedTotal.Inc()
			log.WithFields(log.Fields{
				"share_id":  shareID,
				"device_id": deviceID,
			}).Info("Share created")
			return share, nil
		}

		// The blob is keyed by the rejected id, remove it before retrying
		// so no orphan sits under an unreferenced key.
		if delErr := svc.blobs.DeleteAudio(ctx, shareID); delErr != nil {
			log.WithFields(log.Fields{
				"share_id": shareID,
				"error":    delErr,
			}).Warn("Failed to clean up blob after insert conflict")
		}

		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, shared.NewInternalError(svc.dbErr(err), "Failed to persist share")
		}

		log.WithFields(log.Fields{
			"share_id": shareID,
			"attempt":  attempt,
		}).Warn("Share id collision, regenerating")
	}

	return nil, shared.NewServiceUnavailableError(nil, shared.ErrCodeShareIDExhausted, "Could not allocate a share id, please retry")
}

// Access counts one click and reports whether the share is still servable.
// The increment is a single conditional update returning the post-increment
// row. The click guard lives in the WHERE clause, so viewers racing for the
// last slot get exactly one success and the stored count never passes the
// ceiling.
func (svc *ShareService) Access(ctx context.Context, shareID string) (*model.Share, error) {
	now := time.Now().UTC()

	var share model.Share
	res := svc.db.WithContext(ctx).Raw(
		`UPDATE shares SET click_count = click_count + 1, updated_at = ?
		 WHERE share_id = ? AND status = ? AND click_count < max_clicks AND expires_at > ?
		 RETURNING *`,
		now, shareID, model.ShareStatusActive, now,
	).Scan(&share)
	if res.Error != nil {
		return nil, shared.NewInternalError(svc.dbErr(res.Error), "Failed to access share")
	}
	if res.RowsAffected == 0 {
		svc.destroyIfExpired(ctx, shareID)
		return nil, shared.NewNotFoundError(shared.ErrCodeShareUnavailable, "Challenge has expired or does not exist")
	}

	// The viewer that takes the last slot still gets the page and its audio
	// fetch. Destruction happens when the next access attempt observes the
	// spent share, or when the sweep does.
	sharesAccessedTotal.Inc()
	return &share, nil
}

// destroyIfExpired handles the access that finds a share already spent: the
// row exists but its time or click budget ran out before anyone destroyed
// it. The destroy races with the sweep harmlessly.
func (svc *ShareService) destroyIfExpired(ctx context.Context, shareID string) {
	var share model.Share
	err := svc.db.WithContext(ctx).Where("share_id = ?", shareID).First(&share).Error
	if err != nil {
		return
	}
	if share.Status != model.ShareStatusActive || !share.IsExpired(time.Now().UTC()) {
		return
	}

	log.WithField("share_id", shareID).Info("Share expired, destroying")
	if err := svc.Delete(ctx, shareID); err != nil {
		log.WithFields(log.Fields{
			"share_id": shareID,
			"error":    err,
		}).Error("Failed to destroy expired share")
		return
	}
	sharesExpiredTotal.Inc()
}

// Get reads without counting, used by the audio endpoint.
func (svc *ShareService) Get(ctx context.Context, shareID string) (*model.Share, error) {
	var share model.Share
	err := svc.db.WithContext(ctx).Where("share_id = ?", shareID).First(&share).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.NewNotFoundError(shared.ErrCodeShareUnavailable, "Challenge has expired or does not exist")
	}
	if err != nil {
		return nil, shared.NewInternalError(svc.dbErr(err), "Failed to load share")
	}
	return &share, nil
}

// Delete destroys a share: blob first, then the status flip. Idempotent and
// safe to race, the storage delete tolerates an absent object and the
// status update is a no-op once deleted. The database transition is
// authoritative for servability, a failed storage delete only logs.
func (svc *ShareService) Delete(ctx context.Context, shareID string) error {
	if err := svc.blobs.DeleteAudio(ctx, shareID); err != nil {
		log.WithFields(log.Fields{
			"share_id": shareID,
			"error":    err,
		}).Warn("Audio delete failed or object already absent")
	}

	err := svc.db.WithContext(ctx).Model(&model.Share{}).
		Where("share_id = ?", shareID).
		Updates(map[string]interface{}{
			"status":     model.ShareStatusDeleted,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return shared.NewInternalError(svc.dbErr(err), "Failed to mark share deleted")
	}

	svc.tombstone(ctx, shareID)

	log.WithField("share_id", shareID).Info("Share destroyed")
	return nil
}

// Sweep destroys every active share whose time or click budget ran out
// without the spend being observed on access. One share failing does not
// stop the rest.
func (svc *ShareService) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	var expired []model.Share
	err := svc.db.WithContext(ctx).
		Where("status = ? AND (expires_at <= ? OR click_count >= max_clicks)", model.ShareStatusActive, now).
		Find(&expired).Error
	if err != nil {
		return 0, shared.NewInternalError(svc.dbErr(err), "Failed to scan expired shares")
	}

	count := 0
	for _, share := range expired {
		if err := svc.Delete(ctx, share.ShareID); err != nil {
			log.WithFields(log.Fields{
				"share_id": share.ShareID,
				"error":    err,
			}).Error("Sweep failed to destroy share")
			continue
		}
		count++
	}

	if count > 0 {
		sharesSweptTotal.Add(float64(count))
		log.WithField("count", count).Info("Sweep destroyed expired shares")
	}
	return count, nil
}

// AllowCreate is the advisory per-device creation ceiling. Failed shares
// don't count against the window.
func (svc *ShareService) AllowCreate(ctx context.Context, deviceID string) (bool, error) {
	windowStart := time.Now().UTC().Add(-svc.rateWindow)

	var recent int64
	err := svc.db.WithContext(ctx).Model(&model.Share{}).
		Where("device_id = ? AND created_at >= ? AND status <> ?", deviceID, windowStart, model.ShareStatusFailed).
		Count(&recent).Error
	if err != nil {
		return false, shared.NewInternalError(svc.dbErr(err), "Failed to check creation rate")
	}

	return recent < int64(svc.ratePerDevice), nil
}

// StreamAudio hands back the stored synthesized audio for a servable share.
// It never counts a click; the page view already did. The tombstone check
// saves a database round trip for shares destroyed moments ago.
func (svc *ShareService) StreamAudio(ctx context.Context, shareID string) (io.ReadCloser, error) {
	if svc.IsTombstoned(ctx, shareID) {
		return nil, shared.NewNotFoundError(shared.ErrCodeAudioNotFound, "Audio not found")
	}

	share, err := svc.Get(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if !share.IsAccessible(time.Now().UTC()) {
		return nil, shared.NewNotFoundError(shared.ErrCodeShareUnavailable, "Challenge has expired or does not exist")
	}

	stream, err := svc.blobs.StreamAudio(ctx, shareID)
	if errors.Is(err, ErrAudioNotFound) {
		return nil, shared.NewNotFoundError(shared.ErrCodeAudioNotFound, "Audio not found")
	}
	if err != nil {
		return nil, shared.NewServiceUnavailableError(err, shared.ErrCodeStorageFailed, "Audio storage unavailable")
	}
	return stream, nil
}

func (svc *ShareService) ShareURL(shareID string) string {
	return fmt.Sprintf("%s/s/%s", svc.baseURL, shareID)
}

// IsTombstoned short-circuits audio requests for freshly destroyed shares.
// Best effort, a Redis failure just falls through to the database.
func (svc *ShareService) IsTombstoned(ctx context.Context, shareID string) bool {
	if svc.redisSvc == nil {
		return false
	}
	exists, err := svc.redisSvc.Exists(ctx, shareTombstoneKey(shareID))
	if err != nil {
		return false
	}
	return exists
}

func (svc *ShareService) tombstone(ctx context.Context, shareID string) {
	if svc.redisSvc == nil {
		return
	}
	if err := svc.redisSvc.Set(ctx, shareTombstoneKey(shareID), "1", shareTombstoneTTL); err != nil {
		log.WithFields(log.Fields{
			"share_id": shareID,
			"error":    err,
		}).Debug("Tombstone write failed")
	}
}
