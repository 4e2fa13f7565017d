package repository

import (
	"errors"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/constants"
	"github.com/eonpro/eonpro-sub008/internal/models"

	"gorm.io/gorm"
)

// FraudAlertRepository 风控告警数据访问接口
type FraudAlertRepository interface {
	WithTx(tx *gorm.DB) FraudAlertRepository

	Create(alert *models.FraudAlert) error
	CreateBatch(alerts []models.FraudAlert) error
	GetByID(id uint) (*models.FraudAlert, error)
	List(filter FraudAlertListFilter) ([]models.FraudAlert, int64, error)
	Resolve(id uint, resolvedBy string, resolvedAt time.Time) error
}

// GormFraudAlertRepository GORM 风控告警仓储
type GormFraudAlertRepository struct {
	db *gorm.DB
}

// NewFraudAlertRepository 创建风控告警仓储
func NewFraudAlertRepository(db *gorm.DB) *GormFraudAlertRepository {
	return &GormFraudAlertRepository{db: db}
}

// WithTx 绑定事务
func (r *GormFraudAlertRepository) WithTx(tx *gorm.DB) FraudAlertRepository {
	if tx == nil {
		return r
	}
	return &GormFraudAlertRepository{db: tx}
}

// Create 写入告警
func (r *GormFraudAlertRepository) Create(alert *models.FraudAlert) error {
	return r.db.Create(alert).Error
}

// CreateBatch 批量写入告警
func (r *GormFraudAlertRepository) CreateBatch(alerts []models.FraudAlert) error {
	if len(alerts) == 0 {
		return nil
	}
	return r.db.Create(&alerts).Error
}

// GetByID 按ID获取告警
func (r *GormFraudAlertRepository) GetByID(id uint) (*models.FraudAlert, error) {
	var alert models.FraudAlert
	if err := r.db.First(&alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &alert, nil
}

// List 查询告警列表
func (r *GormFraudAlertRepository) List(filter FraudAlertListFilter) ([]models.FraudAlert, int64, error) {
	query := r.db.Model(&models.FraudAlert{})
	if filter.AffiliateProfileID > 0 {
		query = query.Where("affiliate_profile_id = ?", filter.AffiliateProfileID)
	}
	if filter.AlertType != "" {
		query = query.Where("alert_type = ?", filter.AlertType)
	}
	if filter.Severity != "" {
		query = query.Where("severity = ?", filter.Severity)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var alerts []models.FraudAlert
	if err := applyPagination(query.Order("created_at DESC"), filter.Page, filter.PageSize).
		Find(&alerts).Error; err != nil {
		return nil, 0, err
	}
	return alerts, total, nil
}

// Resolve 人工处理告警
func (r *GormFraudAlertRepository) Resolve(id uint, resolvedBy string, resolvedAt time.Time) error {
	return r.db.Model(&models.FraudAlert{}).
		Where("id = ? AND status = ?", id, constants.FraudAlertStatusOpen).
		Updates(map[string]interface{}{
			"status":      constants.FraudAlertStatusResolved,
			"resolved_by": resolvedBy,
			"resolved_at": resolvedAt,
		}).Error
}
