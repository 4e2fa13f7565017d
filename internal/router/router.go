package router

import (
	"fmt"
	"strings"

	"github.com/eonpro/eonpro-sub008/internal/cache"
	"github.com/eonpro/eonpro-sub008/internal/config"
	adminhandlers "github.com/eonpro/eonpro-sub008/internal/http/handlers/admin"
	publichandlers "github.com/eonpro/eonpro-sub008/internal/http/handlers/public"
	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/provider"

	"github.com/gin-gonic/gin"
)

// SetupRouter 初始化路由
func SetupRouter(cfg *config.Config, c *provider.Container) *gin.Engine {
	log := logger.L
	if log == nil {
		log = logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	}
	r := gin.New()

	// 初始化 Handler（按公开/管理端分组）
	publicHandler := publichandlers.New(c)
	adminHandler := adminhandlers.New(c)
	redisPrefix := strings.TrimSpace(cfg.Redis.Prefix)
	if redisPrefix == "" {
		redisPrefix = "eonpro"
	}
	redisClient := cache.Client()
	webhookRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:webhook", redisPrefix),
		WindowSeconds: 60,
		MaxRequests:   600,
	}
	reconcileRule := RateLimitRule{
		Prefix:        fmt.Sprintf("%s:rate:reconcile", redisPrefix),
		WindowSeconds: 60,
		MaxRequests:   6,
	}

	// 中间件
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(log))
	r.Use(CORSMiddleware(cfg.CORS))

	r.GET("/healthz", publicHandler.Healthz)

	// API 路由组
	apiV1 := r.Group("/api/v1")
	{
		// 网关回调与运维触发入口
		billingGroup := apiV1.Group("/billing")
		{
			billingGroup.POST("/webhook",
				RateLimitMiddleware(redisClient, webhookRule, KeyByIP),
				publicHandler.BillingWebhook)
			billingGroup.POST("/reconcile",
				RateLimitMiddleware(redisClient, reconcileRule, KeyByIP),
				publicHandler.TriggerReconcile)
		}

		// 管理端接口（需鉴权）
		admin := apiV1.Group("/admin")
		admin.Use(AdminJWTMiddleware(cfg.Admin.JWTSecret))
		{
			admin.GET("/dead-letters", adminHandler.ListDeadLetters)
			admin.GET("/dead-letters/:id", adminHandler.GetDeadLetter)
			admin.POST("/dead-letters/:id/retry", adminHandler.RetryDeadLetter)

			admin.GET("/fraud-alerts", adminHandler.ListFraudAlerts)
			admin.POST("/fraud-alerts/:id/resolve", adminHandler.ResolveFraudAlert)

			admin.GET("/commissions", adminHandler.ListCommissions)
			admin.GET("/commissions/:id/ledger", adminHandler.GetCommissionLedger)

			admin.GET("/reconciliation-runs", adminHandler.ListReconciliationRuns)

			admin.GET("/refill-queue", adminHandler.ListRefillQueue)

			admin.GET("/subscriptions/:external_id", adminHandler.GetSubscription)
		}
	}

	return r
}
