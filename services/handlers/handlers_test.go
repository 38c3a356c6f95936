package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scamvax-labs/scamvax_api/dto"
	"github.com/scamvax-labs/scamvax_api/model"
	"github.com/scamvax-labs/scamvax_api/shared"
)

type fakeUnlockService struct {
	token string
	err   error
}

func (f *fakeUnlockService) Issue(ctx context.Context, deviceID, method string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

func (f *fakeUnlockService) TokenTTL() time.Duration {
	return 10 * time.Minute
}

type fakeShareService struct {
	share     *model.Share
	accessErr error

	audio     []byte
	streamErr error
}

func (f *fakeShareService) CreateChallenge(ctx context.Context, req dto.CreateShareRequest, audio []byte, filenameHint, mimeHint string) (*dto.CreateShareResponse, error) {
	return &dto.CreateShareResponse{ShareID: "abcd1234", ShareURL: "http://localhost:8000/s/abcd1234"}, nil
}

func (f *fakeShareService) Access(ctx context.Context, shareID string) (*model.Share, error) {
	if f.accessErr != nil {
		return nil, f.accessErr
	}
	return f.share, nil
}

func (f *fakeShareService) Get(ctx context.Context, shareID string) (*model.Share, error) {
	return f.share, nil
}

func (f *fakeShareService) StreamAudio(ctx context.Context, shareID string) (io.ReadCloser, error) {
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return io.NopCloser(bytes.NewReader(f.audio)), nil
}

func (f *fakeShareService) ShareURL(shareID string) string {
	return "http://localhost:8000/s/" + shareID
}

func newTestApp() *fiber.App {
	return fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if appErr, ok := shared.GetAppError(err); ok {
				return shared.ResponseError(c, appErr)
			}
			return shared.ResponseInternalError(c, err)
		},
	})
}

func decodeEnvelope(t *testing.T, body io.Reader) shared.Response {
	t.Helper()
	var resp shared.Response
	require.NoError(t, json.NewDecoder(body).Decode(&resp))
	return resp
}

func TestIssueUnlock(t *testing.T) {
	app := newTestApp()
	h := NewUnlockHandler(&fakeUnlockService{token: "payload.signature"})
	app.Post("/api/v1/unlock/issue", h.IssueUnlock)

	req := httptest.NewRequest("POST", "/api/v1/unlock/issue",
		strings.NewReader(`{"device_id":"device-test-1","method":"CREDIT"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	envelope := decodeEnvelope(t, resp.Body)
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "payload.signature", data["unlock_token"])
	assert.EqualValues(t, 600, data["expires_in"])
}

func TestIssueUnlockValidation(t *testing.T) {
	app := newTestApp()
	h := NewUnlockHandler(&fakeUnlockService{token: "unused"})
	app.Post("/api/v1/unlock/issue", h.IssueUnlock)

	req := httptest.NewRequest("POST", "/api/v1/unlock/issue",
		strings.NewReader(`{"method":"CREDIT"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestIssueUnlockDenied(t *testing.T) {
	app := newTestApp()
	h := NewUnlockHandler(&fakeUnlockService{
		err: shared.NewUnlockError(shared.ErrCodeUnlockRequired, "No credits available"),
	})
	app.Post("/api/v1/unlock/issue", h.IssueUnlock)

	req := httptest.NewRequest("POST", "/api/v1/unlock/issue",
		strings.NewReader(`{"device_id":"device-test-1","method":"CREDIT"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)

	envelope := decodeEnvelope(t, resp.Body)
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, shared.ErrCodeUnlockRequired, data["error_code"])
}

func TestGetShare(t *testing.T) {
	app := newTestApp()
	now := time.Now().UTC()
	h := NewShareHandler(&fakeShareService{share: &model.Share{
		ShareID:       "abcd1234",
		ClickCount:    3,
		MaxClicks:     50,
		Status:        model.ShareStatusActive,
		ExpiresAt:     now.Add(time.Hour),
		Lang:          "zh",
		ScriptVersion: "v1",
	}}, nil)
	app.Get("/api/v1/share/:shareId", h.GetShare)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/share/abcd1234", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	envelope := decodeEnvelope(t, resp.Body)
	data, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "abcd1234", data["share_id"])
	assert.EqualValues(t, 47, data["clicks_left"])
	assert.Equal(t, true, data["accessible"])
}

func TestGetShareExpired(t *testing.T) {
	app := newTestApp()
	h := NewShareHandler(&fakeShareService{
		accessErr: shared.NewNotFoundError(shared.ErrCodeShareUnavailable, "Challenge has expired or does not exist"),
	}, nil)
	app.Get("/api/v1/share/:shareId", h.GetShare)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/share/gone", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGetShareAudio(t *testing.T) {
	app := newTestApp()
	h := NewShareHandler(&fakeShareService{audio: []byte("wav-bytes")}, nil)
	app.Get("/api/v1/share/:shareId/audio", h.GetShareAudio)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/share/abcd1234/audio", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get(fiber.HeaderContentType))
	assert.Equal(t, "no-store", resp.Header.Get(fiber.HeaderCacheControl))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, []byte("wav-bytes"), body)
}

func TestChallengePage(t *testing.T) {
	app := newTestApp()
	now := time.Now().UTC()
	h := NewPageHandler(&fakeShareService{share: &model.Share{
		ShareID:   "abcd1234",
		Status:    model.ShareStatusActive,
		MaxClicks: 50,
		ExpiresAt: now.Add(time.Hour),
	}})
	app.Get("/s/:shareId", h.ChallengePage)

	req := httptest.NewRequest("GET", "/s/abcd1234?lang=en", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	html := string(body)
	assert.Contains(t, html, "/api/v1/share/abcd1234/audio")
	assert.Contains(t, html, "Family Anti-Scam Exercise")
}

func TestChallengePageExpired(t *testing.T) {
	app := newTestApp()
	h := NewPageHandler(&fakeShareService{
		accessErr: shared.NewNotFoundError(shared.ErrCodeShareUnavailable, "Challenge has expired or does not exist"),
	})
	app.Get("/s/:shareId", h.ChallengePage)

	resp, err := app.Test(httptest.NewRequest("GET", "/s/gone", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusGone, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Challenge Expired")
}
