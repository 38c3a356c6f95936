package services

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"github.com/scamvax-labs/scamvax_api/services/handlers"
	"github.com/scamvax-labs/scamvax_api/shared"
)

type HttpService struct {
	appContext.DefaultService

	shareSvc     *ShareService
	unlockSvc    *UnlockService
	audioSvc     *AudioService
	rateLimitSvc *RateLimitService

	shareHandler  *handlers.ShareHandler
	unlockHandler *handlers.UnlockHandler
	pageHandler   *handlers.PageHandler

	port int
	app  *fiber.App
}

const HTTP_SVC = "http_svc"

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *appContext.Context) error {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	} else {
		svc.port = 8000
	}

	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	svc.shareSvc = svc.Service(SHARE_SVC).(*ShareService)
	svc.unlockSvc = svc.Service(UNLOCK_SVC).(*UnlockService)
	svc.audioSvc = svc.Service(AUDIO_SVC).(*AudioService)
	svc.rateLimitSvc = svc.Service(RATE_LIMIT_SVC).(*RateLimitService)

	svc.shareHandler = handlers.NewShareHandler(svc.shareSvc, svc.audioSvc)
	svc.unlockHandler = handlers.NewUnlockHandler(svc.unlockSvc)
	svc.pageHandler = handlers.NewPageHandler(svc.shareSvc)

	svc.app = fiber.New(fiber.Config{
		AppName:      SERVICE_NAME,
		BodyLimit:    int(svc.audioSvc.MaxSizeBytes()) + 1024*1024,
		ErrorHandler: svc.handleError,
		JSONEncoder:  shared.JSONAPI().Marshal,
		JSONDecoder:  shared.JSONAPI().Unmarshal,
	})

	svc.app.Use(recover.New())
	svc.app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept",
	}))
	svc.app.Use(MonitoringMiddleware())

	svc.registerRoutes()

	return svc.app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) registerRoutes() {
	svc.app.Get("/ping", svc.ping)

	v1 := svc.app.Group("/api/v1", svc.rateLimitSvc.IPRateLimit())
	v1.Get("/ping", svc.ping)

	unlock := v1.Group("/unlock")
	unlock.Post("/issue", svc.rateLimitSvc.RateLimit("unlock_issue"), svc.unlockHandler.IssueUnlock)

	share := v1.Group("/share")
	share.Post("/create", svc.rateLimitSvc.RateLimit("share_create"), svc.shareHandler.CreateShare)
	share.Get("/:shareId", svc.shareHandler.GetShare)
	share.Get("/:shareId/audio", svc.shareHandler.GetShareAudio)

	svc.app.Get("/s/:shareId", svc.rateLimitSvc.RateLimit("share_view"), svc.pageHandler.ChallengePage)
}

func (svc *HttpService) Shutdown() {
	if svc.app != nil {
		_ = svc.app.Shutdown()
	}
}

// @Summary Ping
// @Description This endpoint checks the health of the service
// @Tags health
// @Produce json
// @Success 200 {object} shared.Response{data=string}
// @Router /ping [get]
func (svc *HttpService) ping(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "max-age=10")
	return shared.ResponseJSON(c, fiber.StatusOK, "Success", "pong")
}

// handleError turns AppErrors into the standard envelope; anything else is
// logged and masked as a plain 500.
func (svc *HttpService) handleError(c *fiber.Ctx, err error) error {
	if appErr, ok := shared.GetAppError(err); ok {
		return shared.ResponseError(c, appErr)
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return shared.ResponseJSON(c, fiberErr.Code, fiberErr.Message, nil)
	}

	log.WithFields(log.Fields{
		"path":  c.Path(),
		"error": err,
	}).Error("Unhandled request error")
	return shared.ResponseInternalError(c, err)
}
