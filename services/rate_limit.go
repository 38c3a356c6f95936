package services

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/scamvax-labs/scamvax_api/dto"
	"github.com/scamvax-labs/scamvax_api/model"
	"github.com/scamvax-labs/scamvax_api/shared"
)

// RateLimitService is the endpoint-level abuse limiter: a DB-backed fixed
// window per (identifier, endpoint type) with a block penalty. The
// per-device creation ceiling lives in ShareService; this layer bounds raw
// request pressure before any domain logic runs.
type RateLimitService struct {
	appContext.DefaultService

	configs map[string]*RateLimitConfig
	mutex   sync.RWMutex

	db    *gorm.DB
	dbErr func(error) error
}

type RateLimitConfig struct {
	EndpointType string
	MaxRequests  int
	WindowSize   time.Duration
	BlockTime    time.Duration
	Description  string
	IsActive     bool
}

const RATE_LIMIT_SVC = "rate_limit_svc"

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	svc.configs = make(map[string]*RateLimitConfig)
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	dbSvc := svc.Service(DBServiceID()).(DBProvider)
	svc.db = dbSvc.Db()
	svc.dbErr = dbSvc.HandleError
	svc.initDefaultConfigs()

	go svc.startCleanupJob()

	return nil
}

func (svc *RateLimitService) initDefaultConfigs() {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	svc.configs = map[string]*RateLimitConfig{
		"unlock_issue": {
			EndpointType: "unlock_issue",
			MaxRequests:  30,
			WindowSize:   15 * time.Minute,
			BlockTime:    30 * time.Minute,
			Description:  "Unlock token issuance rate limit per device",
			IsActive:     true,
		},
		"share_create": {
			EndpointType: "share_create",
			MaxRequests:  10,
			WindowSize:   15 * time.Minute,
			BlockTime:    30 * time.Minute,
			Description:  "Challenge creation rate limit per device",
			IsActive:     true,
		},
		"share_view": {
			EndpointType: "share_view",
			MaxRequests:  300,
			WindowSize:   10 * time.Minute,
			BlockTime:    30 * time.Minute,
			Description:  "Challenge page view rate limit per IP",
			IsActive:     true,
		},
		"api_general": {
			EndpointType: "api_general",
			MaxRequests:  1000,
			WindowSize:   time.Hour,
			BlockTime:    time.Hour,
			Description:  "General API rate limit per IP",
			IsActive:     true,
		},
	}
}

// ==================== CORE RATE LIMITING LOGIC ====================

func (svc *RateLimitService) IsAllowed(identifier, endpointType string) (bool, *dto.RateLimitInfo, error) {
	svc.mutex.RLock()
	config, exists := svc.configs[endpointType]
	svc.mutex.RUnlock()

	if !exists || !config.IsActive {
		return true, &dto.RateLimitInfo{
			Allowed:   true,
			Remaining: -1,
		}, nil
	}

	now := time.Now()
	windowStart := now.Add(-config.WindowSize)

	rateLimit, err := svc.getRateLimit(identifier, endpointType)
	if err != nil {
		return false, nil, err
	}

	// Check if currently blocked
	if rateLimit != nil && rateLimit.BlockedUntil != nil && now.Before(*rateLimit.BlockedUntil) {
		return false, &dto.RateLimitInfo{
			Allowed:      false,
			Remaining:    0,
			ResetTime:    rateLimit.BlockedUntil,
			BlockedUntil: rateLimit.BlockedUntil,
		}, nil
	}

	// If no existing record or window has passed, create/reset
	if rateLimit == nil || rateLimit.WindowStart.Before(windowStart) {
		rateLimit = &model.RateLimit{
			Identifier:   identifier,
			EndpointType: endpointType,
			RequestCount: 1,
			WindowStart:  now,
			BlockedUntil: nil,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		if err := svc.saveRateLimit(rateLimit); err != nil {
			return false, nil, err
		}

		resetTime := now.Add(config.WindowSize)
		return true, &dto.RateLimitInfo{
			Allowed:   true,
			Remaining: config.MaxRequests - 1,
			ResetTime: &resetTime,
		}, nil
	}

	// Check if limit exceeded
	if rateLimit.RequestCount >= config.MaxRequests {
		blockedUntil := now.Add(config.BlockTime)
		rateLimit.BlockedUntil = &blockedUntil
		rateLimit.UpdatedAt = now

		if err := svc.updateRateLimit(rateLimit); err != nil {
			return false, nil, err
		}

		return false, &dto.RateLimitInfo{
			Allowed:      false,
			Remaining:    0,
			ResetTime:    &blockedUntil,
			BlockedUntil: &blockedUntil,
		}, nil
	}

	rateLimit.RequestCount++
	rateLimit.UpdatedAt = now

	if err := svc.updateRateLimit(rateLimit); err != nil {
		return false, nil, err
	}

	resetTime := rateLimit.WindowStart.Add(config.WindowSize)
	return true, &dto.RateLimitInfo{
		Allowed:   true,
		Remaining: config.MaxRequests - rateLimit.RequestCount,
		ResetTime: &resetTime,
	}, nil
}

func (svc *RateLimitService) getRateLimit(identifier, endpointType string) (*model.RateLimit, error) {
	var rateLimit model.RateLimit
	err := svc.db.Where("identifier = ? AND endpoint_type = ?", identifier, endpointType).
		Order("window_start DESC").First(&rateLimit).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, svc.dbErr(err)
	}
	return &rateLimit, nil
}

func (svc *RateLimitService) saveRateLimit(rateLimit *model.RateLimit) error {
	if rateLimit.ID == "" {
		id, _ := uuid.NewV7()
		rateLimit.ID = id.String()
	}
	return svc.db.Create(rateLimit).Error
}

func (svc *RateLimitService) updateRateLimit(rateLimit *model.RateLimit) error {
	return svc.db.Save(rateLimit).Error
}

// startCleanupJob drops stale window rows daily so the table stays small.
func (svc *RateLimitService) startCleanupJob() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-48 * time.Hour)
		res := svc.db.Where("window_start < ? AND (blocked_until IS NULL OR blocked_until < ?)", cutoff, time.Now()).
			Delete(&model.RateLimit{})
		if res.Error != nil {
			log.Printf("Rate limit cleanup error: %v", res.Error)
			continue
		}
		if res.RowsAffected > 0 {
			log.Printf("Rate limit cleanup removed %d records", res.RowsAffected)
		}
	}
}

// ==================== MIDDLEWARE FUNCTIONS ====================

// RateLimit creates a rate limiting middleware for a specific endpoint type
func (svc *RateLimitService) RateLimit(endpointType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := svc.getIdentifier(c, endpointType)

		allowed, info, err := svc.IsAllowed(identifier, endpointType)
		if err != nil {
			log.Printf("Rate limit check error for %s (%s): %v", endpointType, identifier, err)
			// Continue with request on error to avoid blocking users due to system issues
			return c.Next()
		}

		svc.addRateLimitHeaders(c, info)

		if !allowed {
			return svc.handleRateLimitExceeded(c, info)
		}

		return c.Next()
	}
}

// IPRateLimit applies general rate limiting by IP address
func (svc *RateLimitService) IPRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := getClientIP(c)

		allowed, info, err := svc.IsAllowed(ip, "api_general")
		if err != nil {
			log.Printf("IP rate limit check error for %s: %v", ip, err)
			return c.Next()
		}

		svc.addRateLimitHeaders(c, info)

		if !allowed {
			return svc.handleRateLimitExceeded(c, info)
		}

		return c.Next()
	}
}

// ==================== HELPER FUNCTIONS ====================

func (svc *RateLimitService) getIdentifier(c *fiber.Ctx, endpointType string) string {
	switch endpointType {
	case "unlock_issue", "share_create":
		// Prefer the device id so one abuser can't burn an office NAT's quota
		deviceID := getDeviceIDFromRequest(c)
		if deviceID != "" {
			return deviceID
		}
		return getClientIP(c)
	default:
		return getClientIP(c)
	}
}

func getDeviceIDFromRequest(c *fiber.Ctx) string {
	if deviceID := c.FormValue(shared.DeviceID); deviceID != "" {
		return deviceID
	}

	var reqBody map[string]interface{}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&reqBody); err == nil {
			if deviceID, exists := reqBody[shared.DeviceID]; exists {
				if deviceIDStr, ok := deviceID.(string); ok {
					return deviceIDStr
				}
			}
		}
	}
	return ""
}

func (svc *RateLimitService) addRateLimitHeaders(c *fiber.Ctx, info *dto.RateLimitInfo) {
	if info == nil {
		return
	}

	if info.Remaining >= 0 {
		c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))
	}

	if info.ResetTime != nil {
		c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
	}

	if info.BlockedUntil != nil {
		retryAfter := int(time.Until(*info.BlockedUntil).Seconds())
		if retryAfter > 0 {
			c.Set("Retry-After", strconv.Itoa(retryAfter))
		}
	}
}

func (svc *RateLimitService) handleRateLimitExceeded(c *fiber.Ctx, info *dto.RateLimitInfo) error {
	appErr := shared.NewRateLimitError("Too many requests. Please try again later.")

	if info != nil && info.BlockedUntil != nil {
		appErr.Data = fiber.Map{
			"blocked_until": info.BlockedUntil.Unix(),
			"retry_after":   int(time.Until(*info.BlockedUntil).Seconds()),
		}
	}

	return shared.ResponseJSON(c, appErr.StatusCode, appErr.Message, fiber.Map{
		"error_code": appErr.ErrorCode,
	})
}

// ==================== UTILITY FUNCTIONS ====================

func getClientIP(c *fiber.Ctx) string {
	// Check for forwarded IP first (for load balancers/proxies)
	forwarded := c.Get("X-Forwarded-For")
	if forwarded != "" {
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			ip := strings.TrimSpace(ips[0])
			if ip != "" {
				return ip
			}
		}
	}

	realIP := c.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	cfIP := c.Get("CF-Connecting-IP")
	if cfIP != "" {
		return cfIP
	}

	ip, _, err := net.SplitHostPort(c.Context().RemoteAddr().String())
	if err != nil {
		return c.Context().RemoteAddr().String()
	}

	return ip
}
