package repository

import (
	"errors"

	"github.com/eonpro/eonpro-sub008/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SubscriptionRepository 订阅投影数据访问接口
type SubscriptionRepository interface {
	WithTx(tx *gorm.DB) SubscriptionRepository

	Upsert(sub *models.Subscription) error
	GetByExternalID(externalID string) (*models.Subscription, error)
}

// GormSubscriptionRepository GORM 订阅仓储
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewSubscriptionRepository 创建订阅仓储
func NewSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSubscriptionRepository) WithTx(tx *gorm.DB) SubscriptionRepository {
	if tx == nil {
		return r
	}
	return &GormSubscriptionRepository{db: tx}
}

// Upsert 按上游订阅ID落库，已存在时整行更新（重放安全）。
func (r *GormSubscriptionRepository) Upsert(sub *models.Subscription) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"patient_id", "clinic_id", "customer_ref", "status",
			"billing_interval", "interval_unit", "interval_count",
			"amount", "currency",
			"current_period_start", "current_period_end", "next_billing_at",
			"cancel_at_period_end", "canceled_at", "updated_at",
		}),
	}).Create(sub).Error
}

// GetByExternalID 按上游订阅ID获取
func (r *GormSubscriptionRepository) GetByExternalID(externalID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.Where("external_id = ?", externalID).First(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}
