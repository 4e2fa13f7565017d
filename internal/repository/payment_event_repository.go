package repository

import (
	"context"
	"errors"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/constants"
	"github.com/eonpro/eonpro-sub008/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentEventRepository 支付事件数据访问接口
type PaymentEventRepository interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) PaymentEventRepository

	InsertIfNew(event *models.PaymentEvent) (bool, error)
	GetByExternalID(externalEventID string) (*models.PaymentEvent, error)
	MarkProcessed(id uint, processedAt time.Time) error
	HasProcessedByCharge(chargeID string, excludeID uint) (bool, error)
	ListExternalIDsBetween(from, to time.Time) ([]string, error)
	CountByCustomerSince(customerRef string, kinds []string, since time.Time) (int64, error)
	CountByKindSince(customerRef string, kind string, since time.Time) (int64, error)
}

// GormPaymentEventRepository GORM 支付事件仓储
type GormPaymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository 创建支付事件仓储
func NewPaymentEventRepository(db *gorm.DB) *GormPaymentEventRepository {
	return &GormPaymentEventRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentEventRepository) WithTx(tx *gorm.DB) PaymentEventRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentEventRepository{db: tx}
}

// Transaction 在调用方上下文中执行事务，超时/取消随上下文传导
func (r *GormPaymentEventRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(fn)
}

// InsertIfNew 按上游事件ID幂等落库，冲突时静默跳过。
// 返回值表示本次是否实际插入了新行。
func (r *GormPaymentEventRepository) InsertIfNew(event *models.PaymentEvent) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_event_id"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetByExternalID 按上游事件ID获取
func (r *GormPaymentEventRepository) GetByExternalID(externalEventID string) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	if err := r.db.Where("external_event_id = ?", externalEventID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// MarkProcessed 标记事件已处理完成
func (r *GormPaymentEventRepository) MarkProcessed(id uint, processedAt time.Time) error {
	return r.db.Model(&models.PaymentEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed":    true,
			"processed_at": processedAt,
		}).Error
}

// HasProcessedByCharge 判断同一笔交易是否已有其他已生效的支付事件。
// 同一经济事件可能以不同对象类型上报两次（checkout 会话与其 charge 腿），
// 先生效的那条覆盖后续的其余表示。
func (r *GormPaymentEventRepository) HasProcessedByCharge(chargeID string, excludeID uint) (bool, error) {
	if chargeID == "" {
		return false, nil
	}
	var count int64
	query := r.db.Model(&models.PaymentEvent{}).
		Where("charge_id = ? AND kind = ? AND processed = ?", chargeID, constants.EventKindPaymentSucceeded, true)
	if excludeID > 0 {
		query = query.Where("id <> ?", excludeID)
	}
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListExternalIDsBetween 列出窗口内已接收的上游事件ID（对账用）
func (r *GormPaymentEventRepository) ListExternalIDsBetween(from, to time.Time) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.PaymentEvent{}).
		Where("occurred_at >= ? AND occurred_at < ?", from, to).
		Pluck("external_event_id", &ids).Error
	return ids, err
}

// CountByCustomerSince 统计客户在时间窗口内的指定类型事件数（频率风控用）
func (r *GormPaymentEventRepository) CountByCustomerSince(customerRef string, kinds []string, since time.Time) (int64, error) {
	if customerRef == "" || len(kinds) == 0 {
		return 0, nil
	}
	var count int64
	err := r.db.Model(&models.PaymentEvent{}).
		Where("customer_ref = ? AND kind IN ? AND occurred_at >= ?", customerRef, kinds, since).
		Count(&count).Error
	return count, err
}

// CountByKindSince 统计客户在时间窗口内单一类型的事件数
func (r *GormPaymentEventRepository) CountByKindSince(customerRef string, kind string, since time.Time) (int64, error) {
	return r.CountByCustomerSince(customerRef, []string{kind}, since)
}
