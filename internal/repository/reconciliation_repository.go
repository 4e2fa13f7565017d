package repository

import (
	"errors"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/models"

	"gorm.io/gorm"
)

// ReconciliationRepository 对账运行数据访问接口
type ReconciliationRepository interface {
	Create(run *models.ReconciliationRun) error
	GetByID(id uint) (*models.ReconciliationRun, error)
	Finish(id uint, status string, totalUpstream, missing, replayed int, errMsg string, finishedAt time.Time) error
	List(filter ReconciliationRunListFilter) ([]models.ReconciliationRun, int64, error)
	GetLatest() (*models.ReconciliationRun, error)
}

// GormReconciliationRepository GORM 对账仓储
type GormReconciliationRepository struct {
	db *gorm.DB
}

// NewReconciliationRepository 创建对账仓储
func NewReconciliationRepository(db *gorm.DB) *GormReconciliationRepository {
	return &GormReconciliationRepository{db: db}
}

// Create 写入对账批次
func (r *GormReconciliationRepository) Create(run *models.ReconciliationRun) error {
	return r.db.Create(run).Error
}

// GetByID 按ID获取对账批次
func (r *GormReconciliationRepository) GetByID(id uint) (*models.ReconciliationRun, error) {
	var run models.ReconciliationRun
	if err := r.db.First(&run, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

// Finish 写入对账批次结果
func (r *GormReconciliationRepository) Finish(id uint, status string, totalUpstream, missing, replayed int, errMsg string, finishedAt time.Time) error {
	return r.db.Model(&models.ReconciliationRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":         status,
			"total_upstream": totalUpstream,
			"missing_count":  missing,
			"replayed_count": replayed,
			"error_message":  errMsg,
			"finished_at":    finishedAt,
		}).Error
}

// List 查询对账批次列表
func (r *GormReconciliationRepository) List(filter ReconciliationRunListFilter) ([]models.ReconciliationRun, int64, error) {
	query := r.db.Model(&models.ReconciliationRun{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var runs []models.ReconciliationRun
	if err := applyPagination(query.Order("created_at DESC"), filter.Page, filter.PageSize).
		Find(&runs).Error; err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// GetLatest 获取最近一次对账批次
func (r *GormReconciliationRepository) GetLatest() (*models.ReconciliationRun, error) {
	var run models.ReconciliationRun
	if err := r.db.Order("created_at DESC").First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}
