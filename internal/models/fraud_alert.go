package models

import "time"

// FraudAlert 风控告警记录
type FraudAlert struct {
	ID                 uint       `gorm:"primarykey" json:"id"`                           // 主键
	AffiliateProfileID uint       `gorm:"index;not null" json:"affiliate_profile_id"`     // 推广人ID
	PatientID          uint       `gorm:"index" json:"patient_id"`                        // 患者ID
	CommissionEventID  uint       `gorm:"index" json:"commission_event_id"`               // 关联佣金记录（可空）
	SourceEventID      string     `gorm:"index" json:"source_event_id"`                   // 触发事件ID
	AlertType          string     `gorm:"type:varchar(50);not null;index" json:"alert_type"` // 告警类型
	Severity           string     `gorm:"type:varchar(20);not null;index" json:"severity"`   // 告警级别
	Score              int        `gorm:"not null;default:0" json:"score"`                // 综合风控得分
	Recommendation     string     `gorm:"type:varchar(20);not null" json:"recommendation"` // 处理建议（approve/review/reject）
	Detail             JSON       `gorm:"type:json" json:"detail"`                        // 命中明细
	Status             string     `gorm:"type:varchar(20);not null;index" json:"status"`  // 处理状态
	ResolvedBy         string     `gorm:"type:varchar(100)" json:"resolved_by,omitempty"` // 处理人
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`                          // 处理时间
	CreatedAt          time.Time  `gorm:"index" json:"created_at"`                        // 创建时间
	UpdatedAt          time.Time  `json:"updated_at"`                                     // 更新时间
}

// TableName 指定表名
func (FraudAlert) TableName() string {
	return "fraud_alerts"
}
