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

// CommissionRepository 佣金归因数据访问接口
type CommissionRepository interface {
	Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error
	WithTx(tx *gorm.DB) CommissionRepository

	GetProfileByID(id uint) (*models.AffiliateProfile, error)
	GetLatestTouchByPatient(patientID uint) (*models.AffiliateTouch, error)
	CountTouchesByProfileAndIP(profileID uint, ip string, since time.Time) (int64, error)

	InsertEventIfNew(event *models.CommissionEvent) (bool, error)
	GetEventByID(id uint) (*models.CommissionEvent, error)
	GetEventBySourceObject(sourceObjectID string) (*models.CommissionEvent, error)
	MarkEventReversed(id uint, reversedAt time.Time) error
	ListEvents(filter CommissionListFilter) ([]models.CommissionEvent, int64, error)
	CountEventsByProfileSince(profileID uint, since time.Time) (int64, error)
	CountEventsByProfileAndIPSince(profileID uint, ip string, since time.Time) (int64, error)
	CountEventsByPatient(patientID uint, statuses []string) (int64, error)
	ReversalStatsByProfile(profileID uint, since time.Time) (total int64, reversed int64, err error)

	CreateLedger(line *models.CommissionLedger) error
	ListLedgerByEvent(commissionEventID uint) ([]models.CommissionLedger, error)
}

// GormCommissionRepository GORM 佣金归因仓储
type GormCommissionRepository struct {
	db *gorm.DB
}

// NewCommissionRepository 创建佣金归因仓储
func NewCommissionRepository(db *gorm.DB) *GormCommissionRepository {
	return &GormCommissionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormCommissionRepository) WithTx(tx *gorm.DB) CommissionRepository {
	if tx == nil {
		return r
	}
	return &GormCommissionRepository{db: tx}
}

// Transaction 在调用方上下文中执行事务，超时/取消随上下文传导
func (r *GormCommissionRepository) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if fn == nil {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(fn)
}

// GetProfileByID 按ID获取推广档案
func (r *GormCommissionRepository) GetProfileByID(id uint) (*models.AffiliateProfile, error) {
	var profile models.AffiliateProfile
	if err := r.db.First(&profile, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

// GetLatestTouchByPatient 获取患者最近一次推广触点（归因依据）
func (r *GormCommissionRepository) GetLatestTouchByPatient(patientID uint) (*models.AffiliateTouch, error) {
	var touch models.AffiliateTouch
	if err := r.db.Where("patient_id = ?", patientID).
		Order("touched_at DESC").
		First(&touch).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &touch, nil
}

// CountTouchesByProfileAndIP 统计推广人同IP触点数（自刷识别用）
func (r *GormCommissionRepository) CountTouchesByProfileAndIP(profileID uint, ip string, since time.Time) (int64, error) {
	if ip == "" {
		return 0, nil
	}
	var count int64
	err := r.db.Model(&models.AffiliateTouch{}).
		Where("affiliate_profile_id = ? AND touch_ip = ? AND touched_at >= ?", profileID, ip, since).
		Count(&count).Error
	return count, err
}

// InsertEventIfNew 按 (推广人, 来源事件) 幂等落库，冲突时静默跳过。
// 返回值表示本次是否实际插入了新行。
func (r *GormCommissionRepository) InsertEventIfNew(event *models.CommissionEvent) (bool, error) {
	result := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "affiliate_profile_id"}, {Name: "source_event_id"}},
		DoNothing: true,
	}).Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// GetEventByID 按ID获取佣金记录
func (r *GormCommissionRepository) GetEventByID(id uint) (*models.CommissionEvent, error) {
	var event models.CommissionEvent
	if err := r.db.First(&event, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// GetEventBySourceObject 按来源对象ID定位佣金记录（退款冲正入口）
func (r *GormCommissionRepository) GetEventBySourceObject(sourceObjectID string) (*models.CommissionEvent, error) {
	if sourceObjectID == "" {
		return nil, nil
	}
	var event models.CommissionEvent
	if err := r.db.Where("source_object_id = ?", sourceObjectID).First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// MarkEventReversed 标记佣金记录已冲正
func (r *GormCommissionRepository) MarkEventReversed(id uint, reversedAt time.Time) error {
	return r.db.Model(&models.CommissionEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      constants.CommissionStatusReversed,
			"reversed_at": reversedAt,
		}).Error
}

// ListEvents 查询佣金记录列表
func (r *GormCommissionRepository) ListEvents(filter CommissionListFilter) ([]models.CommissionEvent, int64, error) {
	query := r.db.Model(&models.CommissionEvent{})
	if filter.AffiliateProfileID > 0 {
		query = query.Where("affiliate_profile_id = ?", filter.AffiliateProfileID)
	}
	if filter.PatientID > 0 {
		query = query.Where("patient_id = ?", filter.PatientID)
	}
	if filter.ClinicID > 0 {
		query = query.Where("clinic_id = ?", filter.ClinicID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.FraudHold != nil {
		query = query.Where("fraud_hold = ?", *filter.FraudHold)
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

	var events []models.CommissionEvent
	if err := applyPagination(query.Order("created_at DESC"), filter.Page, filter.PageSize).
		Find(&events).Error; err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// CountEventsByProfileSince 统计推广人窗口内的归因数（频率风控用）
func (r *GormCommissionRepository) CountEventsByProfileSince(profileID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.CommissionEvent{}).
		Where("affiliate_profile_id = ? AND created_at >= ?", profileID, since).
		Count(&count).Error
	return count, err
}

// CountEventsByProfileAndIPSince 统计推广人同IP转化数（重复IP识别用）
// 以触点IP关联患者再关联佣金记录，识别同一IP批量转化。
func (r *GormCommissionRepository) CountEventsByProfileAndIPSince(profileID uint, ip string, since time.Time) (int64, error) {
	if ip == "" {
		return 0, nil
	}
	var count int64
	err := r.db.Model(&models.CommissionEvent{}).
		Joins("JOIN affiliate_touches ON affiliate_touches.patient_id = commission_events.patient_id AND affiliate_touches.affiliate_profile_id = commission_events.affiliate_profile_id").
		Where("commission_events.affiliate_profile_id = ? AND affiliate_touches.touch_ip = ? AND commission_events.created_at >= ?", profileID, ip, since).
		Count(&count).Error
	return count, err
}

// CountEventsByPatient 统计患者的佣金记录数（首单判定用）
func (r *GormCommissionRepository) CountEventsByPatient(patientID uint, statuses []string) (int64, error) {
	query := r.db.Model(&models.CommissionEvent{}).Where("patient_id = ?", patientID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	var count int64
	err := query.Count(&count).Error
	return count, err
}

// ReversalStatsByProfile 统计推广人窗口内的总归因数与冲正数（退款率风控用）
func (r *GormCommissionRepository) ReversalStatsByProfile(profileID uint, since time.Time) (int64, int64, error) {
	var total int64
	if err := r.db.Model(&models.CommissionEvent{}).
		Where("affiliate_profile_id = ? AND created_at >= ?", profileID, since).
		Count(&total).Error; err != nil {
		return 0, 0, err
	}
	var reversed int64
	if err := r.db.Model(&models.CommissionEvent{}).
		Where("affiliate_profile_id = ? AND created_at >= ? AND status = ?", profileID, since, constants.CommissionStatusReversed).
		Count(&reversed).Error; err != nil {
		return 0, 0, err
	}
	return total, reversed, nil
}

// CreateLedger 写入佣金账务流水
func (r *GormCommissionRepository) CreateLedger(line *models.CommissionLedger) error {
	return r.db.Create(line).Error
}

// ListLedgerByEvent 查询佣金记录的全部流水
func (r *GormCommissionRepository) ListLedgerByEvent(commissionEventID uint) ([]models.CommissionLedger, error) {
	var lines []models.CommissionLedger
	err := r.db.Where("commission_event_id = ?", commissionEventID).
		Order("id ASC").
		Find(&lines).Error
	return lines, err
}
