package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PatientRepository 患者与客户关联数据访问接口
type PatientRepository interface {
	WithTx(tx *gorm.DB) PatientRepository

	GetByID(id uint) (*models.Patient, error)
	GetByEmailAndClinic(email string, clinicID uint) (*models.Patient, error)
	MarkFirstPaid(id uint, paidAt time.Time) error

	GetLinkByCustomerRef(customerRef string) (*models.CustomerLink, error)
	InsertLinkIfNew(link *models.CustomerLink) (bool, error)
}

// GormPatientRepository GORM 患者仓储
type GormPatientRepository struct {
	db *gorm.DB
}

// NewPatientRepository 创建患者仓储
func NewPatientRepository(db *gorm.DB) *GormPatientRepository {
	return &GormPatientRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPatientRepository) WithTx(tx *gorm.DB) PatientRepository {
	if tx == nil {
		return r
	}
	return &GormPatientRepository{db: tx}
}

// GetByID 按ID获取患者
func (r *GormPatientRepository) GetByID(id uint) (*models.Patient, error) {
	var patient models.Patient
	if err := r.db.First(&patient, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &patient, nil
}

// GetByEmailAndClinic 诊所范围内按归一化邮箱查找患者（兜底解析路径）。
// 邮箱大小写不敏感，诊所范围限定避免跨租户串数据。
func (r *GormPatientRepository) GetByEmailAndClinic(email string, clinicID uint) (*models.Patient, error) {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || clinicID == 0 {
		return nil, nil
	}
	var patient models.Patient
	if err := r.db.Where("LOWER(email) = ? AND clinic_id = ?", normalized, clinicID).
		First(&patient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &patient, nil
}

// MarkFirstPaid 记录患者首笔支付时间（仅未记录时写入）
func (r *GormPatientRepository) MarkFirstPaid(id uint, paidAt time.Time) error {
	return r.db.Model(&models.Patient{}).
		Where("id = ? AND first_paid_at IS NULL", id).
		Update("first_paid_at", paidAt).Error
}

// GetLinkByCustomerRef 按上游客户标识查找关联（主解析路径）
func (r *GormPatientRepository) GetLinkByCustomerRef(customerRef string) (*models.CustomerLink, error) {
	if customerRef == "" {
		return nil, nil
	}
	var link models.CustomerLink
	if err := r.db.Where("customer_ref = ?", customerRef).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

// InsertLinkIfNew 按客户标识幂等建立关联，冲突时静默跳过。
func (r *GormPatientRepository) InsertLinkIfNew(link *models.CustomerLink) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "customer_ref"}},
		DoNothing: true,
	}).Create(link)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
