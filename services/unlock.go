package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scamvax-labs/scamvax_api/dto"
	"github.com/scamvax-labs/scamvax_api/model"
	"github.com/scamvax-labs/scamvax_api/shared"
)

// UnlockService issues and consumes signed single-use unlock tokens against
// the per-device wallet. Issuance only checks eligibility; the spend
// happens at consume time inside one locked transaction, which is the only
// place wallet state changes.
type UnlockService struct {
	appContext.DefaultService

	db    *gorm.DB
	dbErr func(error) error

	secret         []byte
	tokenTTL       time.Duration
	defaultCredits int
}

const UNLOCK_SVC = "unlock_svc"

const tokenVersion = 1

func (svc UnlockService) Id() string {
	return UNLOCK_SVC
}

func (svc *UnlockService) Configure(ctx *appContext.Context) error {
	secret := os.Getenv("UNLOCK_SECRET_KEY")
	if secret == "" {
		secret = "changeme"
		log.Warn("UNLOCK_SECRET_KEY not set, using insecure default")
	}
	svc.secret = []byte(secret)

	svc.tokenTTL = time.Duration(envInt("UNLOCK_TOKEN_TTL_SECONDS", 600)) * time.Second
	svc.defaultCredits = envInt("WALLET_DEFAULT_CREDITS", 100)

	return svc.DefaultService.Configure(ctx)
}

func (svc *UnlockService) Start() error {
	dbSvc := svc.Service(DBServiceID()).(DBProvider)
	svc.db = dbSvc.Db()
	svc.dbErr = dbSvc.HandleError
	return nil
}

func (svc *UnlockService) TokenTTL() time.Duration {
	return svc.tokenTTL
}

func validUnlockMethod(method string) bool {
	return method == shared.UnlockMethodCredit || method == shared.UnlockMethodBonus
}

// Issue checks eligibility and hands out a signed token without touching
// the wallet balance.
func (svc *UnlockService) Issue(ctx context.Context, deviceID, method string) (string, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if !validUnlockMethod(method) {
		return "", shared.NewUnlockError(shared.ErrCodeInvalidUnlockMethod, "Unsupported unlock method")
	}

	wallet, err := svc.ensureWallet(svc.db.WithContext(ctx), deviceID)
	if err != nil {
		return "", err
	}

	if method == shared.UnlockMethodCredit && wallet.Credits <= 0 {
		return "", shared.NewUnlockError(shared.ErrCodeUnlockRequired, "No credits available")
	}
	if method == shared.UnlockMethodBonus && wallet.BonusUsed {
		return "", shared.NewUnlockError(shared.ErrCodeUnlockRequired, "Bonus already used")
	}

	payload := dto.UnlockTokenPayload{
		Version:  tokenVersion,
		JTI:      strings.ReplaceAll(uuid.New().String(), "-", ""),
		DeviceID: deviceID,
		Method:   method,
		Expiry:   time.Now().Add(svc.tokenTTL).Unix(),
	}

	raw, err := shared.JSONAPI().Marshal(payload)
	if err != nil {
		return "", shared.NewInternalError(err, "Failed to encode unlock token")
	}

	payloadPart := base64.RawURLEncoding.EncodeToString(raw)
	sigPart := base64.RawURLEncoding.EncodeToString(svc.sign(payloadPart))

	unlockTokensIssuedTotal.WithLabelValues(method).Inc()
	log.WithFields(log.Fields{
		"device_id": deviceID,
		"method":    method,
		"jti":       payload.JTI,
	}).Info("Unlock token issued")

	return payloadPart + "." + sigPart, nil
}

// Consume verifies and spends a token exactly once. The wallet mutation and
// the token-use insert commit in the same transaction under a row lock, so
// concurrent replays of one jti cannot double-spend.
func (svc *UnlockService) Consume(ctx context.Context, deviceID, token string) (string, error) {
	payload, err := svc.verifyAndParse(token)
	if err != nil {
		return "", err
	}

	if payload.DeviceID != deviceID {
		return "", shared.NewUnlockError(shared.ErrCodeInvalidUnlockToken, "Unlock token does not match this device")
	}
	if !validUnlockMethod(payload.Method) || payload.JTI == "" {
		return "", shared.NewUnlockError(shared.ErrCodeInvalidUnlockToken, "Unlock token fields invalid")
	}

	// Cheap replay check before taking any lock. The authoritative check is
	// the unique insert inside the transaction below.
	var used model.UnlockTokenUse
	err = svc.db.WithContext(ctx).Where("jti = ?", payload.JTI).First(&used).Error
	if err == nil {
		return "", shared.NewUnlockError(shared.ErrCodeUnlockTokenUsed, "Unlock token already used")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", shared.NewInternalError(svc.dbErr(err), "Failed to check unlock token")
	}

	err = svc.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallet, err := svc.lockWallet(tx, deviceID)
		if err != nil {
			return err
		}

		switch payload.Method {
		case shared.UnlockMethodCredit:
			if wallet.Credits <= 0 {
				return shared.NewUnlockError(shared.ErrCodeUnlockRequired, "No credits available")
			}
			wallet.Credits--
		case shared.UnlockMethodBonus:
			if wallet.BonusUsed {
				return shared.NewUnlockError(shared.ErrCodeUnlockRequired, "Bonus already used")
			}
			wallet.BonusUsed = true
		}
		wallet.UpdatedAt = time.Now().UTC()

		if err := tx.Save(wallet).Error; err != nil {
			return shared.NewInternalError(svc.dbErr(err), "Failed to update wallet")
		}

		use := &model.UnlockTokenUse{
			JTI:      payload.JTI,
			DeviceID: deviceID,
			Method:   payload.Method,
			UsedAt:   time.Now().UTC(),
		}
		if err := tx.Create(use).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return shared.NewUnlockError(shared.ErrCodeUnlockTokenUsed, "Unlock token already used")
			}
			return shared.NewInternalError(svc.dbErr(err), "Failed to record unlock token use")
		}

		return nil
	})
	if err != nil {
		return "", err
	}

	unlockTokensConsumedTotal.WithLabelValues(payload.Method).Inc()
	log.WithFields(log.Fields{
		"device_id": deviceID,
		"method":    payload.Method,
		"jti":       payload.JTI,
	}).Info("Unlock token consumed")

	return payload.Method, nil
}

func (svc *UnlockService) sign(payloadPart string) []byte {
	mac := hmac.New(sha256.New, svc.secret)
	mac.Write([]byte(payloadPart))
	return mac.Sum(nil)
}

func (svc *UnlockService) verifyAndParse(token string) (*dto.UnlockTokenPayload, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, shared.NewUnlockError(shared.ErrCodeInvalidUnlockToken, "Unlock token malformed")
	}

	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, shared.NewUnlockError(shared.ErrCodeInvalidUnlockToken, "Unlock token malformed")
	}
	if !hmac.Equal(svc.sign(parts[0]), sig) {
		return nil, shared.NewUnlockError(shared.ErrCodeInvalidUnlockToken, "Unlock token signature invalid")
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, shared.NewUnlockError(shared.ErrCodeInvalidUnlockToken, "Unlock token malformed")
	}

	var payload dto.UnlockTokenPayload
	if err := shared.JSONAPI().Unmarshal(raw, &payload); err != nil {
		return nil, shared.NewUnlockError(shared.ErrCodeInvalidUnlockToken, "Unlock token unparseable")
	}

	if payload.Expiry < time.Now().Unix() {
		return nil, shared.NewUnlockError(shared.ErrCodeUnlockTokenExpired, "Unlock token expired")
	}

	return &payload, nil
}

// ensureWallet initializes the default wallet concurrently-safely and
// returns the current row.
func (svc *UnlockService) ensureWallet(db *gorm.DB, deviceID string) (*model.DeviceWallet, error) {
	now := time.Now().UTC()
	seed := &model.DeviceWallet{
		DeviceID:  deviceID,
		Credits:   svc.defaultCredits,
		BonusUsed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error
	if err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, shared.NewServiceUnavailableError(svc.dbErr(err), shared.ErrCodeWalletUnavailable, "Wallet initialization failed")
	}

	var wallet model.DeviceWallet
	if err := db.Where("device_id = ?", deviceID).First(&wallet).Error; err != nil {
		return nil, shared.NewServiceUnavailableError(svc.dbErr(err), shared.ErrCodeWalletUnavailable, "Wallet read failed")
	}
	return &wallet, nil
}

// lockWallet takes the per-row exclusive lock for the spend. SQLite has no
// FOR UPDATE and serializes writers on its own, so the clause is postgres
// only.
func (svc *UnlockService) lockWallet(tx *gorm.DB, deviceID string) (*model.DeviceWallet, error) {
	if _, err := svc.ensureWallet(tx, deviceID); err != nil {
		return nil, err
	}

	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var wallet model.DeviceWallet
	if err := q.Where("device_id = ?", deviceID).First(&wallet).Error; err != nil {
		return nil, shared.NewServiceUnavailableError(svc.dbErr(err), shared.ErrCodeWalletUnavailable, "Wallet read failed")
	}
	return &wallet, nil
}
