package models

import "time"

// Patient 患者
type Patient struct {
	ID              uint      `gorm:"primarykey" json:"id"`                            // 主键
	ClinicID        uint      `gorm:"index;not null" json:"clinic_id"`                 // 诊所ID
	Email           string    `gorm:"type:varchar(100);index" json:"email"`            // 邮箱
	Name            string    `gorm:"type:varchar(100)" json:"name"`                   // 姓名
	SignupIP        string    `gorm:"type:varchar(64)" json:"signup_ip"`               // 注册IP
	ReferredBy      uint      `gorm:"index" json:"referred_by"`                        // 推荐推广人ID
	FirstPaidAt     *time.Time `json:"first_paid_at,omitempty"`                        // 首笔支付时间
	CreatedAt       time.Time `gorm:"index" json:"created_at"`                         // 创建时间
	UpdatedAt       time.Time `json:"updated_at"`                                      // 更新时间
}

// TableName 指定表名
func (Patient) TableName() string {
	return "patients"
}
