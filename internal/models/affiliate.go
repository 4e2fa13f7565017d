package models

import "time"

// AffiliateProfile 推广人档案
type AffiliateProfile struct {
	ID              uint      `gorm:"primarykey" json:"id"`                                // 主键
	ClinicID        uint      `gorm:"index;not null" json:"clinic_id"`                     // 诊所ID
	Code            string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`   // 推广码
	Name            string    `gorm:"type:varchar(100)" json:"name"`                       // 名称
	Email           string    `gorm:"type:varchar(100)" json:"email"`                      // 邮箱
	CommissionRate  int       `gorm:"not null;default:0" json:"commission_rate"`           // 首单佣金比例（百分比）
	RecurringRate   int       `gorm:"not null;default:0" json:"recurring_rate"`            // 续费佣金比例（百分比）
	Status          string    `gorm:"type:varchar(20);not null;index" json:"status"`       // 状态
	SignupIP        string    `gorm:"type:varchar(64)" json:"signup_ip"`                   // 注册IP
	CreatedAt       time.Time `gorm:"index" json:"created_at"`                             // 创建时间
	UpdatedAt       time.Time `json:"updated_at"`                                          // 更新时间
}

// TableName 指定表名
func (AffiliateProfile) TableName() string {
	return "affiliate_profiles"
}

// AffiliateTouch 推广触点（归因依据，记录患者与推广链接的接触）
type AffiliateTouch struct {
	ID                 uint      `gorm:"primarykey" json:"id"`                       // 主键
	AffiliateProfileID uint      `gorm:"index;not null" json:"affiliate_profile_id"` // 推广人ID
	PatientID          uint      `gorm:"index;not null" json:"patient_id"`           // 患者ID
	TouchIP            string    `gorm:"type:varchar(64)" json:"touch_ip"`           // 触点IP
	TouchedAt          time.Time `gorm:"index" json:"touched_at"`                    // 触点时间
	CreatedAt          time.Time `json:"created_at"`                                 // 创建时间
}

// TableName 指定表名
func (AffiliateTouch) TableName() string {
	return "affiliate_touches"
}
