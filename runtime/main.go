package main

import (
	"os"

	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/scamvax-labs/scamvax_api/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, using system environment variables")
	}

	svcs := []context.Service{
		&services.MonitoringService{},
		&services.RedisService{},
		&services.MinIOService{},
		&services.AudioService{},
		&services.SynthesizerService{},
		&services.UnlockService{},
		&services.RateLimitService{},
		&services.ShareService{},
		&services.CleanupService{},

		&services.HttpService{},
	}

	if os.Getenv("DB_DRIVER") == "sqlite" {
		svcs = append([]context.Service{&services.SqliteService{}}, svcs...)
	} else {
		svcs = append([]context.Service{&services.PostgresService{}}, svcs...)
	}

	ctx, err := context.NewCtx(svcs...)
	if err != nil {
		log.WithField("error", err).Fatal("Failed to build service context")
	}

	if err := ctx.Run(); err != nil {
		log.WithField("error", err).Fatal("Service context exited")
	}
}
