package models

import "time"

// CustomerLink 处理方客户与院内患者的绑定关系（customer_ref 全局唯一）
type CustomerLink struct {
	ID          uint      `gorm:"primarykey" json:"id"`                      // 主键
	CustomerRef string    `gorm:"uniqueIndex;not null" json:"customer_ref"`  // 处理方客户标识
	PatientID   uint      `gorm:"index;not null" json:"patient_id"`          // 患者ID
	ClinicID    uint      `gorm:"index;not null" json:"clinic_id"`           // 诊所ID
	CreatedAt   time.Time `gorm:"index" json:"created_at"`                   // 创建时间
	UpdatedAt   time.Time `json:"updated_at"`                                // 更新时间
}

// TableName 指定表名
func (CustomerLink) TableName() string {
	return "customer_links"
}
