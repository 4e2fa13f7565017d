package repository

import (
	"errors"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IPIntelRepository IP情报缓存数据访问接口
type IPIntelRepository interface {
	GetByHash(ipHash string) (*models.IPIntel, error)
	Upsert(intel *models.IPIntel) error
	DeleteByHash(ipHash string) error
	DeleteExpired(before time.Time) (int64, error)
}

// GormIPIntelRepository GORM IP情报仓储
type GormIPIntelRepository struct {
	db *gorm.DB
}

// NewIPIntelRepository 创建IP情报仓储
func NewIPIntelRepository(db *gorm.DB) *GormIPIntelRepository {
	return &GormIPIntelRepository{db: db}
}

// GetByHash 按IP哈希获取缓存条目
func (r *GormIPIntelRepository) GetByHash(ipHash string) (*models.IPIntel, error) {
	var intel models.IPIntel
	if err := r.db.Where("ip_hash = ?", ipHash).First(&intel).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &intel, nil
}

// Upsert 按IP哈希落库，已存在时整行更新（最后写入生效）。
func (r *GormIPIntelRepository) Upsert(intel *models.IPIntel) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ip_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_proxy", "is_vpn", "is_tor", "is_hosting", "is_bot",
			"risk_score", "country", "provider", "expires_at", "updated_at",
		}),
	}).Create(intel).Error
}

// DeleteByHash 删除单条缓存（惰性淘汰用）
func (r *GormIPIntelRepository) DeleteByHash(ipHash string) error {
	return r.db.Where("ip_hash = ?", ipHash).Delete(&models.IPIntel{}).Error
}

// DeleteExpired 批量清理过期条目
func (r *GormIPIntelRepository) DeleteExpired(before time.Time) (int64, error) {
	result := r.db.Where("expires_at <= ?", before).Delete(&models.IPIntel{})
	return result.RowsAffected, result.Error
}
