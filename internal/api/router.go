package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/adamwilson22/Velaa-Backend/internal/api/handlers"
	"github.com/adamwilson22/Velaa-Backend/internal/api/middleware"
	"github.com/adamwilson22/Velaa-Backend/internal/config"
	"github.com/adamwilson22/Velaa-Backend/internal/email"
	"github.com/adamwilson22/Velaa-Backend/internal/metrics"
	"github.com/adamwilson22/Velaa-Backend/internal/services"
	"github.com/adamwilson22/Velaa-Backend/internal/tasks"
)

// RouterDeps are the collaborators of the public API.
type RouterDeps struct {
	Billing     services.IBillingService
	Enqueuer    tasks.IEnqueuer // optional
	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiterMiddleware // optional
}

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, deps RouterDeps) (*gin.Engine, error) {
	if err := handlers.RegisterValidators(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Metrics(deps.Metrics), middleware.CORSMiddleware())
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Limit())
	}

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	billingHandler := handlers.NewBillingHandler(deps.Billing, deps.Enqueuer)

	v1 := r.Group("/v1")
	{
		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		b := v1.Group("/billing")
		b.Use(middleware.AuthMiddleware(cfg.JwtSecret))
		{
			manager := middleware.ManagerMiddleware()

			b.GET("", billingHandler.ListInvoices)
			b.GET("/list", billingHandler.ListMonthly)
			b.GET("/ensure/vehicle/:vehicleId", billingHandler.EnsureVehicleInvoice)
			b.POST("/generate", manager, billingHandler.GenerateMonthly)
			b.POST("/export", manager, billingHandler.ExportMonthly)
			b.GET("/outstanding", billingHandler.ListOutstanding)
			b.GET("/overdue", billingHandler.ListOverdue)
			b.GET("/reports/revenue", billingHandler.RevenueStats)

			b.GET("/:id", billingHandler.GetInvoice)
			b.PUT("/:id/adjustments", billingHandler.SetAdjustments)
			b.POST("/:id/payment", billingHandler.AddPayment)
			b.GET("/:id/payments", billingHandler.ListPayments)
			b.POST("/:id/send-reminder", billingHandler.SendReminder)
			b.GET("/:id/reminders", billingHandler.ListReminders)
			b.PUT("/:id/mark-paid", billingHandler.MarkPaid)
			b.PUT("/:id/cancel", manager, billingHandler.Cancel)
			b.PUT("/:id/refund", manager, billingHandler.Refund)
		}
	}

	return r, nil
}

// SetupServiceRouter configures the internal service API used by operators
// and integration tests. rdb may be nil, which disables getTestEmail.
func SetupServiceRouter(rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			log.Info().Msg("shutdown requested via service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
			default:
			}
		case "getTestEmail":
			getTestEmail(c, rdb, req.Arguments)
		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Unknown service method: " + req.Method})
		}
	})
	return r
}

// getTestEmail returns (and removes) the mock email stored for
// arguments [template, recipient], polling briefly for it to arrive.
func getTestEmail(c *gin.Context, rdb *redis.Client, arguments json.RawMessage) {
	if rdb == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Redis is not configured"})
		return
	}
	var args []string
	if err := json.Unmarshal(arguments, &args); err != nil || len(args) != 2 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [template, email]"})
		return
	}
	key := email.MockEmailKey(args[1], args[0])

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	var raw string
	var err error
	for i := 0; i < 10; i++ {
		raw, err = rdb.GetDel(ctx, key).Result()
		if err == nil {
			break
		}
		if !errors.Is(err, redis.Nil) {
			log.Error().Err(err).Str("key", key).Msg("service API redis error")
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Test email not found for key " + key})
		return
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}
