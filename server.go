package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/middlewares"
	"github.com/mmdatafocus/payroll_bridge/models"
	"github.com/mmdatafocus/payroll_bridge/workflow"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 30 * time.Second

// pushEnvelope is the body of a Pub/Sub push delivery. Data arrives base64 encoded, which
// json decodes into a byte slice.
type pushEnvelope struct {
	Message struct {
		Data []byte `json:"data,omitempty"`
		ID   string `json:"id"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// decodeScheduledRun unwraps a push delivery. The correlation id falls back to the Pub/Sub
// message id so retries of one delivery share it.
func decodeScheduledRun(body []byte) (messageId string, m workflow.ScheduledRunMessage, err error) {
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", m, fmt.Errorf("push envelope: %w", err)
	}
	if err := json.Unmarshal(env.Message.Data, &m); err != nil {
		return env.Message.ID, m, fmt.Errorf("scheduled run payload: %w", err)
	}
	if m.CorrelationId == "" {
		m.CorrelationId = env.Message.ID
	}
	return env.Message.ID, m, nil
}

// scheduledRunPushHandler acks (2xx) everything except failures worth redelivering. Messages
// that can never succeed are logged and acked.
func scheduledRunPushHandler(c *gin.Context) {
	logger := config.GetLogger()
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		config.LogError(logger, "server.go", "scheduledRunPushHandler", "Reading body", nil, err)
		c.Status(http.StatusNoContent)
		return
	}
	messageId, m, err := decodeScheduledRun(body)
	if err != nil {
		config.LogError(logger, "server.go", "scheduledRunPushHandler", "Decoding message", string(body), err)
		c.Status(http.StatusNoContent)
		return
	}

	entry := logger.WithFields(logrus.Fields{
		"field":          "scheduledRunPushHandler",
		"tenant_id":      m.TenantId,
		"run_type":       m.RunType,
		"message_id":     messageId,
		"correlation_id": m.CorrelationId,
	})
	switch err := workflow.ProcessScheduledRun(c.Request.Context(), messageId, m); {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, workflow.ErrPoisonMessage):
		entry.Error("dropping scheduled run message: " + err.Error())
		c.Status(http.StatusNoContent)
	default:
		entry.Error("scheduled run failed: " + err.Error())
		c.Status(http.StatusInternalServerError)
	}
}

// readiness answers 503 until the database is connected. /healthz only proves the process is
// up. Redis is optional everywhere.
func readiness(c *gin.Context) {
	if c.Request.URL.Path == "/healthz" {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	if config.GetDB() == nil {
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}
	c.Next()
}

func newRouter(logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.Correlation(), readiness, middlewares.CORS(), middlewares.ErrorLogger(logger), gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/pubsub/scheduled-runs", scheduledRunPushHandler)

	api := r.Group("/api/v1")
	api.Use(
		middlewares.SessionMiddleware(),
		middlewares.AuthMiddleware(),
		middlewares.RequireTenant(),
		middlewares.RateLimit(config.RateLimit()),
	)
	registerRoutes(api)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

// prepareDependencies runs once the port is open: the startup check is TCP based and
// connecting may retry for a while.
func prepareDependencies(ctx context.Context, logger *logrus.Logger) {
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	if config.SkipMigrations() {
		logger.WithField("field", "migrations").Warn("SKIP_MIGRATIONS set; skipping AutoMigrate")
	} else {
		models.MigrateTable()
	}
	if config.NotificationsEnabled() {
		topic := config.MatchingEventsTopic()
		if _, err := config.EnsureTopic(ctx, topic); err != nil {
			config.LogError(logger, "server.go", "prepareDependencies", "Ensuring matching events topic", topic, err)
		}
	}
}

func closeDependencies() {
	if db := config.GetDB(); db != nil {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func main() {
	logger := config.GetLogger()
	// Cloud Run sends SIGTERM before stopping a revision
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	port := config.ListenPort()
	srv := &http.Server{Addr: ":" + port, Handler: newRouter(logger)}
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	prepareDependencies(ctx, logger)
	defer closeDependencies()
	logger.WithField("port", port).Info("payroll bridge ready")

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.WithField("field", "http").Error("server stopped: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithField("field", "http").Error("graceful shutdown: " + err.Error())
	}
}
