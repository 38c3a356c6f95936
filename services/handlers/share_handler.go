package handlers

import (
	"fmt"
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/scamvax-labs/scamvax_api/dto"
	"github.com/scamvax-labs/scamvax_api/shared"
)

type ShareHandler struct {
	shareSvc ShareServiceInterface
	audioSvc AudioServiceInterface
}

func NewShareHandler(shareSvc ShareServiceInterface, audioSvc AudioServiceInterface) *ShareHandler {
	return &ShareHandler{
		shareSvc: shareSvc,
		audioSvc: audioSvc,
	}
}

// @Summary Create Challenge
// @Description Clone the uploaded voice and publish an ephemeral challenge link
// @Tags share
// @Accept multipart/form-data
// @Produce json
// @Param audio formData file true "Reference voice recording (WAV, MP3, M4A, AAC, OGG, FLAC)"
// @Param device_id formData string true "Anonymous device identifier"
// @Param unlock_token formData string true "Single-use unlock token"
// @Param lang formData string false "Script language (zh, en)" default(zh)
// @Param platform formData string false "Client platform"
// @Param region formData string false "Client region"
// @Success 200 {object} shared.Response{data=dto.CreateShareResponse}
// @Router /api/v1/share/create [post]
func (h *ShareHandler) CreateShare(c *fiber.Ctx) error {
	var req dto.CreateShareRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}

	file, err := c.FormFile("audio")
	if err != nil {
		return shared.NewBadRequestError(err, "No audio file provided")
	}
	if file.Size > h.audioSvc.MaxSizeBytes() {
		return shared.NewFileTooLargeError(h.audioSvc.MaxSizeMB())
	}

	src, err := file.Open()
	if err != nil {
		return shared.NewBadRequestError(err, "Could not read audio file")
	}
	defer src.Close()

	audio, err := io.ReadAll(io.LimitReader(src, h.audioSvc.MaxSizeBytes()+1))
	if err != nil {
		return shared.NewBadRequestError(err, "Could not read audio file")
	}
	if int64(len(audio)) > h.audioSvc.MaxSizeBytes() {
		return shared.NewFileTooLargeError(h.audioSvc.MaxSizeMB())
	}

	response, err := h.shareSvc.CreateChallenge(c.Context(), req, audio, file.Filename, file.Header.Get(fiber.HeaderContentType))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, fiber.StatusOK, "Challenge created", response)
}

// @Summary Get Challenge Status
// @Description Count one access and return whether the challenge is still live
// @Tags share
// @Produce json
// @Param shareId path string true "Share ID"
// @Success 200 {object} shared.Response{data=dto.ShareAccessResponse}
// @Router /api/v1/share/{shareId} [get]
func (h *ShareHandler) GetShare(c *fiber.Ctx) error {
	shareID := c.Params("shareId")

	share, err := h.shareSvc.Access(c.Context(), shareID)
	if err != nil {
		return err
	}

	clicksLeft := share.MaxClicks - share.ClickCount
	if clicksLeft < 0 {
		clicksLeft = 0
	}

	return shared.ResponseOK(c, dto.ShareAccessResponse{
		ShareID:       share.ShareID,
		Accessible:    true,
		ClicksLeft:    clicksLeft,
		ExpiresAt:     share.ExpiresAt,
		Lang:          share.Lang,
		ScriptVersion: share.ScriptVersion,
	})
}

// @Summary Stream Challenge Audio
// @Description Serve the synthesized audio without exposing storage URLs. Does not count an access.
// @Tags share
// @Produce audio/wav
// @Param shareId path string true "Share ID"
// @Success 200 {file} binary
// @Router /api/v1/share/{shareId}/audio [get]
func (h *ShareHandler) GetShareAudio(c *fiber.Ctx) error {
	shareID := c.Params("shareId")

	stream, err := h.shareSvc.StreamAudio(c.Context(), shareID)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "audio/wav")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`inline; filename="challenge_%s.wav"`, shareID))
	c.Set(fiber.HeaderCacheControl, "no-store")
	c.Set("X-Content-Type-Options", "nosniff")
	return c.SendStream(stream)
}
