package provider

import (
	"github.com/eonpro/eonpro-sub008/internal/billing"
	"github.com/eonpro/eonpro-sub008/internal/cache"
	"github.com/eonpro/eonpro-sub008/internal/config"
	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/models"
	"github.com/eonpro/eonpro-sub008/internal/queue"
	"github.com/eonpro/eonpro-sub008/internal/reputation"
	"github.com/eonpro/eonpro-sub008/internal/repository"
	"github.com/eonpro/eonpro-sub008/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config        *config.Config
	QueueClient   *queue.Client
	BillingClient *billing.Client

	// Repositories
	PaymentEventRepo   repository.PaymentEventRepository
	CommissionRepo     repository.CommissionRepository
	PatientRepo        repository.PatientRepository
	RefillRepo         repository.RefillRepository
	SubscriptionRepo   repository.SubscriptionRepository
	FraudAlertRepo     repository.FraudAlertRepository
	DeadLetterRepo     repository.DeadLetterRepository
	IPIntelRepo        repository.IPIntelRepository
	ReconciliationRepo repository.ReconciliationRepository

	// Services
	IPIntelService        *service.IPIntelService
	FraudService          *service.FraudService
	ResolverService       *service.ResolverService
	CommissionService     *service.CommissionService
	RefillService         *service.RefillService
	SubscriptionService   *service.SubscriptionService
	NotificationService   *service.NotificationService
	DispatcherService     *service.DispatcherService
	DeadLetterService     *service.DeadLetterService
	ReconciliationService *service.ReconciliationService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	// 初始化计费处理方客户端
	var billingClient *billing.Client
	bc, err := billing.NewClient(&billing.Config{
		APIKey:                  cfg.Billing.APIKey,
		WebhookSecret:           cfg.Billing.WebhookSecret,
		APIBaseURL:              cfg.Billing.APIBaseURL,
		WebhookToleranceSeconds: cfg.Billing.WebhookToleranceS,
		RequestTimeoutSeconds:   cfg.Billing.RequestTimeoutSeconds,
	})
	if err != nil {
		logger.Warnw("provider_init_billing_client_failed", "error", err)
	} else {
		billingClient = bc
	}

	c := &Container{
		Config:        cfg,
		QueueClient:   queueClient,
		BillingClient: billingClient,
	}

	c.initRepositories()
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.PaymentEventRepo = repository.NewPaymentEventRepository(db)
	c.CommissionRepo = repository.NewCommissionRepository(db)
	c.PatientRepo = repository.NewPatientRepository(db)
	c.RefillRepo = repository.NewRefillRepository(db)
	c.SubscriptionRepo = repository.NewSubscriptionRepository(db)
	c.FraudAlertRepo = repository.NewFraudAlertRepository(db)
	c.DeadLetterRepo = repository.NewDeadLetterRepository(db)
	c.IPIntelRepo = repository.NewIPIntelRepository(db)
	c.ReconciliationRepo = repository.NewReconciliationRepository(db)
}

func (c *Container) initServices() {
	// 外部 IP 信誉服务可选，未配置时只用本地启发式
	var reputationProvider reputation.Provider
	if c.Config.Risk.Reputation.APIBaseURL != "" {
		provider, err := reputation.NewAPIProvider(reputation.APIConfig{
			Endpoint:       c.Config.Risk.Reputation.APIBaseURL,
			APIKey:         c.Config.Risk.Reputation.APIKey,
			TimeoutSeconds: c.Config.Risk.Reputation.RequestTimeoutSeconds,
		})
		if err != nil {
			logger.Warnw("provider_init_reputation_failed", "error", err)
		} else {
			reputationProvider = provider
		}
	}

	c.IPIntelService = service.NewIPIntelService(c.IPIntelRepo, reputationProvider, c.Config.Risk.Reputation)
	c.FraudService = service.NewFraudService(c.CommissionRepo, c.PaymentEventRepo, c.IPIntelService, c.Config.Risk)
	c.NotificationService = service.NewNotificationService(c.QueueClient)

	var fetcher service.BillingCustomerFetcher
	if c.BillingClient != nil {
		fetcher = c.BillingClient
	}
	c.ResolverService = service.NewResolverService(c.PatientRepo, fetcher)
	c.CommissionService = service.NewCommissionService(c.CommissionRepo, c.PatientRepo, c.FraudAlertRepo, c.FraudService)
	c.RefillService = service.NewRefillService(c.RefillRepo)
	c.SubscriptionService = service.NewSubscriptionService(c.SubscriptionRepo, c.ResolverService)
	c.DispatcherService = service.NewDispatcherService(
		c.PaymentEventRepo, c.DeadLetterRepo, c.ResolverService,
		c.CommissionService, c.RefillService, c.SubscriptionService,
		c.NotificationService, c.Config.Billing.ProcessTimeoutSeconds,
	)
	c.DeadLetterService = service.NewDeadLetterService(c.DeadLetterRepo, c.DispatcherService)

	var lister service.BillingEventLister
	if c.BillingClient != nil {
		lister = c.BillingClient
	}
	c.ReconciliationService = service.NewReconciliationService(
		c.ReconciliationRepo, c.PaymentEventRepo, c.DispatcherService,
		lister, c.NotificationService, c.Config.Reconcile,
	)
}
