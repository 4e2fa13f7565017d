package service

import (
	"context"
	"errors"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/billing"
	"github.com/eonpro/eonpro-sub008/internal/constants"
	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/models"
	"github.com/eonpro/eonpro-sub008/internal/repository"

	"gorm.io/gorm"
)

// SubscriptionService 订阅投影服务
type SubscriptionService struct {
	repo     repository.SubscriptionRepository
	resolver *ResolverService
}

// NewSubscriptionService 创建订阅投影服务
func NewSubscriptionService(repo repository.SubscriptionRepository, resolver *ResolverService) *SubscriptionService {
	return &SubscriptionService{
		repo:     repo,
		resolver: resolver,
	}
}

// WithTx 绑定事务
func (s *SubscriptionService) WithTx(tx *gorm.DB) *SubscriptionService {
	if tx == nil {
		return s
	}
	return &SubscriptionService{
		repo:     s.repo.WithTx(tx),
		resolver: s.resolver.WithTx(tx),
	}
}

// Sync 投影上游订阅生命周期事件。按上游订阅ID整行覆盖，重放安全。
// 患者解析失败只跳过，订阅事件可能先于患者绑定到达。
func (s *SubscriptionService) Sync(ctx context.Context, kind string, payload *billing.SubscriptionPayload) (*models.Subscription, error) {
	if payload == nil || payload.SubscriptionID == "" {
		return nil, nil
	}

	patient, err := s.resolver.Resolve(ctx, payload.CustomerRef, payload.ClinicID)
	if err != nil {
		if errors.Is(err, ErrCustomerUnresolved) {
			logger.Infow("subscription_sync_skipped_unresolved",
				"subscription_id", payload.SubscriptionID,
				"customer_ref", payload.CustomerRef)
			return nil, nil
		}
		return nil, err
	}

	status := MapSubscriptionStatus(kind, payload.Status)
	existing, err := s.repo.GetByExternalID(payload.SubscriptionID)
	if err != nil {
		return nil, err
	}
	// 取消/过期是终态：上游晚到的旧事件不得把订阅拉回可扣费状态
	if existing != nil && isTerminalSubscriptionStatus(existing.Status) && !isTerminalSubscriptionStatus(status) {
		logger.Warnw("subscription_sync_ignored_stale",
			"subscription_id", payload.SubscriptionID,
			"current_status", existing.Status,
			"event_status", status,
			"event_kind", kind)
		return existing, nil
	}

	now := time.Now().UTC()
	sub := &models.Subscription{
		ExternalID:        payload.SubscriptionID,
		PatientID:         patient.PatientID,
		ClinicID:          patient.ClinicID,
		CustomerRef:       payload.CustomerRef,
		Status:            status,
		BillingInterval:   ClassifyBillingInterval(payload.IntervalUnit, payload.IntervalCount),
		IntervalUnit:      payload.IntervalUnit,
		IntervalCount:     payload.IntervalCount,
		Amount:            models.NewMoneyFromMinorUnits(payload.AmountMinor, billing.MinorUnitScale(payload.Currency)),
		Currency:          payload.Currency,
		CancelAtPeriodEnd: payload.CancelAtPeriodEnd,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if payload.CurrentPeriodStart > 0 {
		start := time.Unix(payload.CurrentPeriodStart, 0).UTC()
		sub.CurrentPeriodStart = &start
	}
	if payload.CurrentPeriodEnd > 0 {
		end := time.Unix(payload.CurrentPeriodEnd, 0).UTC()
		sub.CurrentPeriodEnd = &end
	}
	// 下次扣费时间只在活跃状态下有意义
	if status == constants.SubscriptionStatusActive && sub.CurrentPeriodEnd != nil {
		sub.NextBillingAt = sub.CurrentPeriodEnd
	}
	if payload.CanceledAt > 0 {
		canceled := time.Unix(payload.CanceledAt, 0).UTC()
		sub.CanceledAt = &canceled
	}

	if err := s.repo.Upsert(sub); err != nil {
		return nil, err
	}
	logger.Infow("subscription_synced",
		"subscription_id", sub.ExternalID,
		"status", sub.Status,
		"billing_interval", sub.BillingInterval)
	return sub, nil
}

// GetByExternalID 按上游订阅ID查询（管理端）
func (s *SubscriptionService) GetByExternalID(externalID string) (*models.Subscription, error) {
	return s.repo.GetByExternalID(externalID)
}

func isTerminalSubscriptionStatus(status string) bool {
	return status == constants.SubscriptionStatusCanceled ||
		status == constants.SubscriptionStatusExpired
}

// MapSubscriptionStatus 上游生命周期状态到本地状态的映射。
// 删除事件一律视为取消。
func MapSubscriptionStatus(kind, upstreamStatus string) string {
	if kind == constants.EventKindSubscriptionDeleted {
		return constants.SubscriptionStatusCanceled
	}
	switch upstreamStatus {
	case "active", "trialing":
		return constants.SubscriptionStatusActive
	case "past_due":
		return constants.SubscriptionStatusPastDue
	case "paused":
		return constants.SubscriptionStatusPaused
	case "canceled", "unpaid", "incomplete_expired":
		return constants.SubscriptionStatusCanceled
	default:
		return constants.SubscriptionStatusActive
	}
}

// ClassifyBillingInterval 计费周期归类。先认规范单位，再按数量兜底；
// 不能明确归入季付/半年付/年付的一律按月付处理（含按天/周的
// 非常规计费）。
func ClassifyBillingInterval(unit string, count int) string {
	if count <= 0 {
		count = 1
	}
	switch unit {
	case "year":
		return constants.BillingIntervalAnnual
	case "month":
		switch count {
		case 3:
			return constants.BillingIntervalQuarterly
		case 6:
			return constants.BillingIntervalSemiannual
		case 12:
			return constants.BillingIntervalAnnual
		default:
			return constants.BillingIntervalMonthly
		}
	default:
		// 按天/周等非常规计费归入月付
		return constants.BillingIntervalMonthly
	}
}
