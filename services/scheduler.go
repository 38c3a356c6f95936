package services

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// CleanupService runs the periodic sweep for time-expired shares. Count
// expiry is discovered on access; time expiry for shares nobody opens again
// needs this independent pass.
type CleanupService struct {
	appContext.DefaultService

	shareSvc *ShareService
	redisSvc *RedisService

	interval time.Duration
	holder   string
	running  atomic.Bool
	done     chan struct{}
}

const CLEANUP_SVC = "cleanup_svc"

const sweepLeaseKey = "share:sweep:lease"

func (svc CleanupService) Id() string {
	return CLEANUP_SVC
}

func (svc *CleanupService) Configure(ctx *appContext.Context) error {
	svc.interval = time.Duration(envInt("CLEANUP_INTERVAL_MINUTES", 30)) * time.Minute
	svc.holder = hostname() + "-" + uuid.New().String()[:8]
	svc.done = make(chan struct{})
	return svc.DefaultService.Configure(ctx)
}

func (svc *CleanupService) Start() error {
	svc.shareSvc = svc.Service(SHARE_SVC).(*ShareService)
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)

	go svc.loop()

	log.WithField("interval", svc.interval).Info("Cleanup scheduler started")
	return nil
}

func (svc *CleanupService) Shutdown() {
	close(svc.done)
}

func (svc *CleanupService) loop() {
	ticker := time.NewTicker(svc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			svc.runOnce()
		case <-svc.done:
			log.Info("Cleanup scheduler stopped")
			return
		}
	}
}

// runOnce sweeps at most once at a time: a local guard against a slow sweep
// outliving the tick, and a Redis lease so only one instance of the
// deployment does the work.
func (svc *CleanupService) runOnce() {
	if !svc.running.CompareAndSwap(false, true) {
		log.Warn("Previous sweep still running, skipping tick")
		return
	}
	defer svc.running.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), svc.interval/2)
	defer cancel()

	acquired, err := svc.redisSvc.AcquireLease(ctx, sweepLeaseKey, svc.holder, svc.interval/2)
	if err != nil {
		// Redis down should not stop expiry; sweep anyway and accept the
		// chance of a redundant pass (delete is idempotent).
		log.WithField("error", err).Warn("Sweep lease unavailable, sweeping without it")
	} else if !acquired {
		log.Debug("Sweep lease held elsewhere, skipping")
		return
	} else {
		defer func() {
			if err := svc.redisSvc.ReleaseLease(context.Background(), sweepLeaseKey, svc.holder); err != nil {
				log.WithField("error", err).Debug("Sweep lease release failed")
			}
		}()
	}

	count, err := svc.shareSvc.Sweep(ctx)
	if err != nil {
		log.WithField("error", err).Error("Sweep failed")
		return
	}
	if count > 0 {
		log.WithField("count", count).Info("Sweep cleaned up expired shares")
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "scamvax"
	}
	return h
}
