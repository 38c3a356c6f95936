package services

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	log "github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	MONITORING_SVC          = "monitoring_svc"
	SERVICE_NAME            = "scamvax_backend"
	DEFAULT_PROMETHEUS_PORT = 2112
)

// HTTP metrics
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"endpoint", "method", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint", "method", "status"},
	)
)

// Domain metrics
var (
	sharesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shares_created_total",
		Help: "Challenges published",
	})

	sharesAccessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shares_accessed_total",
		Help: "Successful challenge accesses (counted clicks)",
	})

	sharesExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shares_expired_total",
		Help: "Challenges destroyed after hitting a click or time limit on access",
	})

	sharesSweptTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shares_swept_total",
		Help: "Challenges destroyed by the background sweep",
	})

	unlockTokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unlock_tokens_issued_total",
			Help: "Unlock tokens issued",
		},
		[]string{"method"},
	)

	unlockTokensConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unlock_tokens_consumed_total",
			Help: "Unlock tokens consumed (wallet spends)",
		},
		[]string{"method"},
	)

	synthesisFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "synthesis_failures_total",
		Help: "Voice synthesis attempts that failed after token consumption",
	})
)

// System metrics
var (
	heapAllocBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "heap_alloc_bytes",
		Help: "Bytes of allocated heap objects",
	})

	heapSysBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "heap_sys_bytes",
		Help: "Bytes of heap memory obtained from the OS",
	})

	gcTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gc_cycles_total",
		Help: "Completed GC cycles",
	})
)

type MonitoringService struct {
	appContext.DefaultService

	port        int
	register    *prometheus.Registry
	server      *fiber.App
	lastGCCount uint32
	closed      chan struct{}
}

func (svc MonitoringService) Id() string {
	return MONITORING_SVC
}

func (svc *MonitoringService) Configure(ctx *appContext.Context) error {
	svc.port = DEFAULT_PROMETHEUS_PORT
	if port := os.Getenv("PROMETHEUS_PORT"); port != "" {
		var err error
		if svc.port, err = strconv.Atoi(port); err != nil {
			return err
		}
	}
	svc.closed = make(chan struct{})
	return svc.DefaultService.Configure(ctx)
}

func (svc *MonitoringService) Start() error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reg.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		sharesCreatedTotal,
		sharesAccessedTotal,
		sharesExpiredTotal,
		sharesSweptTotal,
		unlockTokensIssuedTotal,
		unlockTokensConsumedTotal,
		synthesisFailuresTotal,
		heapAllocBytes,
		heapSysBytes,
		gcTotal,
	)

	svc.register = reg

	go svc.updateMemoryMetrics()

	config := fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
		},
	}

	svc.server = fiber.New(config)
	svc.server.Use(recover.New())

	svc.server.Get("/metrics", svc.metricsHandler)
	svc.server.Get("/health", svc.healthHandler)

	go func() {
		if err := svc.server.Listen(fmt.Sprintf(":%v", svc.port)); err != nil {
			log.WithField("error", err).Error("Metrics server stopped")
		}
	}()

	log.WithField("port", svc.port).Info("Prometheus metrics server started")
	return nil
}

func (svc *MonitoringService) Shutdown() {
	close(svc.closed)
	if svc.server != nil {
		_ = svc.server.Shutdown()
	}
}

func (svc *MonitoringService) metricsHandler(c *fiber.Ctx) error {
	handler := promhttp.HandlerFor(svc.register, promhttp.HandlerOpts{})
	return adaptor.HTTPHandler(handler)(c)
}

func (svc *MonitoringService) healthHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "healthy",
		"service":   SERVICE_NAME,
		"timestamp": time.Now().Unix(),
	})
}

// updateMemoryMetrics refreshes memory gauges every 15 seconds.
func (svc *MonitoringService) updateMemoryMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			heapAllocBytes.Set(float64(m.Alloc))
			heapSysBytes.Set(float64(m.Sys))

			if m.NumGC > svc.lastGCCount {
				gcTotal.Add(float64(m.NumGC - svc.lastGCCount))
				svc.lastGCCount = m.NumGC
			}
		case <-svc.closed:
			return
		}
	}
}

// MonitoringMiddleware records request counts and latency per route.
func MonitoringMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		endpoint := c.Route().Path
		method := c.Method()
		status := strconv.Itoa(c.Response().StatusCode())

		httpRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(endpoint, method, status).Observe(time.Since(start).Seconds())

		return err
	}
}
