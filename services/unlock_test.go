package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/scamvax-labs/scamvax_api/model"
	"github.com/scamvax-labs/scamvax_api/shared"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One in-memory database, one connection. Concurrent test traffic
	// serializes instead of each connection seeing its own empty :memory:.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(migrationModels()...))
	return db
}

func newTestUnlockService(t *testing.T, db *gorm.DB) *UnlockService {
	t.Helper()
	return &UnlockService{
		db:             db,
		dbErr:          (&SqliteService{}).HandleError,
		secret:         []byte("test-secret"),
		tokenTTL:       10 * time.Minute,
		defaultCredits: 100,
	}
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	appErr, ok := shared.GetAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	return appErr.ErrorCode
}

func TestUnlockIssueConsumeRoundTrip(t *testing.T) {
	db := newTestDB(t)
	svc := newTestUnlockService(t, db)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "device-roundtrip", shared.UnlockMethodCredit)
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 2)

	// Issuing must not spend.
	var wallet model.DeviceWallet
	require.NoError(t, db.First(&wallet, "device_id = ?", "device-roundtrip").Error)
	assert.Equal(t, 100, wallet.Credits)

	method, err := svc.Consume(ctx, "device-roundtrip", token)
	require.NoError(t, err)
	assert.Equal(t, shared.UnlockMethodCredit, method)

	require.NoError(t, db.First(&wallet, "device_id = ?", "device-roundtrip").Error)
	assert.Equal(t, 99, wallet.Credits)

	_, err = svc.Consume(ctx, "device-roundtrip", token)
	assert.Equal(t, shared.ErrCodeUnlockTokenUsed, errorCode(t, err))

	// The replay must not have touched the wallet again.
	require.NoError(t, db.First(&wallet, "device_id = ?", "device-roundtrip").Error)
	assert.Equal(t, 99, wallet.Credits)
}

func TestUnlockConsumeDeviceMismatch(t *testing.T) {
	db := newTestDB(t)
	svc := newTestUnlockService(t, db)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "device-a", shared.UnlockMethodCredit)
	require.NoError(t, err)

	_, err = svc.Consume(ctx, "device-b", token)
	assert.Equal(t, shared.ErrCodeInvalidUnlockToken, errorCode(t, err))
}

func TestUnlockConsumeTamperedToken(t *testing.T) {
	db := newTestDB(t)
	svc := newTestUnlockService(t, db)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "device-tamper", shared.UnlockMethodCredit)
	require.NoError(t, err)

	cases := map[string]string{
		"missing signature": strings.Split(token, ".")[0],
		"garbage":           "not-a-token",
		"flipped payload":   "x" + token,
		"flipped signature": token[:len(token)-2] + "zz",
	}
	for name, tampered := range cases {
		_, err := svc.Consume(ctx, "device-tamper", tampered)
		assert.Equal(t, shared.ErrCodeInvalidUnlockToken, errorCode(t, err), name)
	}
}

func TestUnlockConsumeExpiredToken(t *testing.T) {
	db := newTestDB(t)
	svc := newTestUnlockService(t, db)
	svc.tokenTTL = -time.Minute
	ctx := context.Background()

	token, err := svc.Issue(ctx, "device-expired", shared.UnlockMethodCredit)
	require.NoError(t, err)

	_, err = svc.Consume(ctx, "device-expired", token)
	assert.Equal(t, shared.ErrCodeUnlockTokenExpired, errorCode(t, err))
}

func TestUnlockInvalidMethod(t *testing.T) {
	db := newTestDB(t)
	svc := newTestUnlockService(t, db)

	_, err := svc.Issue(context.Background(), "device-method", "GIFT")
	assert.Equal(t, shared.ErrCodeInvalidUnlockMethod, errorCode(t, err))
}

func TestUnlockBonusSingleUse(t *testing.T) {
	db := newTestDB(t)
	svc := newTestUnlockService(t, db)
	ctx := context.Background()

	token, err := svc.Issue(ctx, "device-bonus", shared.UnlockMethodBonus)
	require.NoError(t, err)

	method, err := svc.Consume(ctx, "device-bonus", token)
	require.NoError(t, err)
	assert.Equal(t, shared.UnlockMethodBonus, method)

	var wallet model.DeviceWallet
	require.NoError(t, db.First(&wallet, "device_id = ?", "device-bonus").Error)
	assert.True(t, wallet.BonusUsed)
	// Bonus spend leaves the credit balance alone.
	assert.Equal(t, 100, wallet.Credits)

	_, err = svc.Issue(ctx, "device-bonus", shared.UnlockMethodBonus)
	assert.Equal(t, shared.ErrCodeUnlockRequired, errorCode(t, err))
}

func TestUnlockCreditDrain(t *testing.T) {
	db := newTestDB(t)
	svc := newTestUnlockService(t, db)
	svc.defaultCredits = 3
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		token, err := svc.Issue(ctx, "device-drain", shared.UnlockMethodCredit)
		require.NoError(t, err, "issue %d", i)
		_, err = svc.Consume(ctx, "device-drain", token)
		require.NoError(t, err, "consume %d", i)
	}

	var wallet model.DeviceWallet
	require.NoError(t, db.First(&wallet, "device_id = ?", "device-drain").Error)
	assert.Equal(t, 0, wallet.Credits)

	_, err := svc.Issue(ctx, "device-drain", shared.UnlockMethodCredit)
	assert.Equal(t, shared.ErrCodeUnlockRequired, errorCode(t, err))
}

func TestUnlockIssuedTokenEligibilityRecheckedAtConsume(t *testing.T) {
	db := newTestDB(t)
	svc := newTestUnlockService(t, db)
	ctx := context.Background()

	// Two tokens issued against one remaining credit: only one can spend.
	svc.defaultCredits = 1
	first, err := svc.Issue(ctx, "device-recheck", shared.UnlockMethodCredit)
	require.NoError(t, err)
	second, err := svc.Issue(ctx, "device-recheck", shared.UnlockMethodCredit)
	require.NoError(t, err)

	_, err = svc.Consume(ctx, "device-recheck", first)
	require.NoError(t, err)

	_, err = svc.Consume(ctx, "device-recheck", second)
	assert.Equal(t, shared.ErrCodeUnlockRequired, errorCode(t, err))
}
