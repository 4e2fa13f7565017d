package repository

import (
	"errors"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeadLetterRepository 死信事件数据访问接口
type DeadLetterRepository interface {
	WithTx(tx *gorm.DB) DeadLetterRepository

	Upsert(entry *models.DeadLetterEvent) error
	GetByID(id uint) (*models.DeadLetterEvent, error)
	List(filter DeadLetterListFilter) ([]models.DeadLetterEvent, int64, error)
	RecordRetry(id uint, retryAt time.Time) error
	MarkResolved(id uint, resolvedAt time.Time) error
}

// GormDeadLetterRepository GORM 死信仓储
type GormDeadLetterRepository struct {
	db *gorm.DB
}

// NewDeadLetterRepository 创建死信仓储
func NewDeadLetterRepository(db *gorm.DB) *GormDeadLetterRepository {
	return &GormDeadLetterRepository{db: db}
}

// WithTx 绑定事务
func (r *GormDeadLetterRepository) WithTx(tx *gorm.DB) DeadLetterRepository {
	if tx == nil {
		return r
	}
	return &GormDeadLetterRepository{db: tx}
}

// Upsert 落库死信。同一事件重复失败时更新失败原因并累加重试计数，
// 不产生第二条死信。
func (r *GormDeadLetterRepository) Upsert(entry *models.DeadLetterEvent) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "external_event_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"failure_reason": entry.FailureReason,
			"retry_count":    gorm.Expr("retry_count + 1"),
			"last_retry_at":  time.Now(),
			"resolved":       false,
		}),
	}).Create(entry).Error
}

// GetByID 按ID获取死信
func (r *GormDeadLetterRepository) GetByID(id uint) (*models.DeadLetterEvent, error) {
	var entry models.DeadLetterEvent
	if err := r.db.First(&entry, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// List 查询死信列表
func (r *GormDeadLetterRepository) List(filter DeadLetterListFilter) ([]models.DeadLetterEvent, int64, error) {
	query := r.db.Model(&models.DeadLetterEvent{})
	if filter.EventType != "" {
		query = query.Where("event_type = ?", filter.EventType)
	}
	if filter.Resolved != nil {
		query = query.Where("resolved = ?", *filter.Resolved)
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

	var entries []models.DeadLetterEvent
	if err := applyPagination(query.Order("created_at DESC"), filter.Page, filter.PageSize).
		Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// RecordRetry 记录一次重试
func (r *GormDeadLetterRepository) RecordRetry(id uint, retryAt time.Time) error {
	return r.db.Model(&models.DeadLetterEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_retry_at": retryAt,
		}).Error
}

// MarkResolved 标记死信已恢复
func (r *GormDeadLetterRepository) MarkResolved(id uint, resolvedAt time.Time) error {
	return r.db.Model(&models.DeadLetterEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"resolved":    true,
			"resolved_at": resolvedAt,
		}).Error
}
