package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/scamvax-labs/scamvax_api/dto"
	"github.com/scamvax-labs/scamvax_api/shared"
)

type UnlockHandler struct {
	unlockSvc UnlockServiceInterface
}

func NewUnlockHandler(unlockSvc UnlockServiceInterface) *UnlockHandler {
	return &UnlockHandler{
		unlockSvc: unlockSvc,
	}
}

// @Summary Issue Unlock Token
// @Description Issue a short-lived single-use unlock token if the device wallet is eligible
// @Tags unlock
// @Accept json
// @Produce json
// @Param request body dto.IssueUnlockRequest true "Device and unlock method"
// @Success 200 {object} shared.Response{data=dto.IssueUnlockResponse}
// @Router /api/v1/unlock/issue [post]
func (h *UnlockHandler) IssueUnlock(c *fiber.Ctx) error {
	var req dto.IssueUnlockRequest
	if err := c.BodyParser(&req); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}
	if err := req.Validate(); err != nil {
		return shared.NewBadRequestError(err, "Invalid request body")
	}

	token, err := h.unlockSvc.Issue(c.Context(), req.DeviceID, req.Method)
	if err != nil {
		return err
	}

	return shared.ResponseOK(c, dto.IssueUnlockResponse{
		UnlockToken: token,
		ExpiresIn:   int64(h.unlockSvc.TokenTTL().Seconds()),
	})
}
