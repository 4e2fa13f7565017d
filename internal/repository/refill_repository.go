package repository

import (
	"time"

	"github.com/eonpro/eonpro-sub008/internal/constants"
	"github.com/eonpro/eonpro-sub008/internal/models"

	"gorm.io/gorm"
)

// RefillRepository 续方队列数据访问接口
type RefillRepository interface {
	WithTx(tx *gorm.DB) RefillRepository

	ListPendingPaymentByPatient(patientID, clinicID uint) ([]models.RefillQueueEntry, error)
	MarkPaymentVerified(id uint, eventID, invoiceRef string, amount models.Money, mismatch bool, matchedAt time.Time) (bool, error)
	List(filter RefillQueueListFilter) ([]models.RefillQueueEntry, int64, error)
}

// GormRefillRepository GORM 续方队列仓储
type GormRefillRepository struct {
	db *gorm.DB
}

// NewRefillRepository 创建续方队列仓储
func NewRefillRepository(db *gorm.DB) *GormRefillRepository {
	return &GormRefillRepository{db: db}
}

// WithTx 绑定事务
func (r *GormRefillRepository) WithTx(tx *gorm.DB) RefillRepository {
	if tx == nil {
		return r
	}
	return &GormRefillRepository{db: tx}
}

// ListPendingPaymentByPatient 按患者列出待支付的续方条目（从旧到新）
func (r *GormRefillRepository) ListPendingPaymentByPatient(patientID, clinicID uint) ([]models.RefillQueueEntry, error) {
	var entries []models.RefillQueueEntry
	query := r.db.Where("patient_id = ? AND status = ?", patientID, constants.RefillStatusPendingPayment)
	if clinicID > 0 {
		query = query.Where("clinic_id = ?", clinicID)
	}
	err := query.Order("created_at ASC").Find(&entries).Error
	return entries, err
}

// MarkPaymentVerified 将待支付条目推进为已验证支付。
// 状态条件写入 WHERE，与并发匹配竞争时只有一方生效。
func (r *GormRefillRepository) MarkPaymentVerified(id uint, eventID, invoiceRef string, amount models.Money, mismatch bool, matchedAt time.Time) (bool, error) {
	result := r.db.Model(&models.RefillQueueEntry{}).
		Where("id = ? AND status = ?", id, constants.RefillStatusPendingPayment).
		Updates(map[string]interface{}{
			"status":              constants.RefillStatusPaymentVerified,
			"matched_event_id":    eventID,
			"matched_invoice_ref": invoiceRef,
			"matched_amount":      amount,
			"amount_mismatch":     mismatch,
			"payment_matched_at":  matchedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// List 查询续方队列列表
func (r *GormRefillRepository) List(filter RefillQueueListFilter) ([]models.RefillQueueEntry, int64, error) {
	query := r.db.Model(&models.RefillQueueEntry{})
	if filter.PatientID > 0 {
		query = query.Where("patient_id = ?", filter.PatientID)
	}
	if filter.ClinicID > 0 {
		query = query.Where("clinic_id = ?", filter.ClinicID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.RefillQueueEntry
	if err := applyPagination(query.Order("created_at DESC"), filter.Page, filter.PageSize).
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
