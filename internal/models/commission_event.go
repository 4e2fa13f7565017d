package models

import "time"

// CommissionEvent 推广佣金归因记录
// (affiliate_profile_id, source_event_id) 复合唯一索引保证同一支付事件
// 对同一推广人至多归因一次。
type CommissionEvent struct {
	ID                 uint      `gorm:"primarykey" json:"id"`                                                                  // 主键
	AffiliateProfileID uint      `gorm:"not null;index;index:idx_commission_event_unique,unique" json:"affiliate_profile_id"`   // 推广人ID
	PatientID          uint      `gorm:"index;not null" json:"patient_id"`                                                      // 患者ID
	ClinicID           uint      `gorm:"index;not null" json:"clinic_id"`                                                       // 诊所ID
	SourceEventID      string    `gorm:"not null;index;index:idx_commission_event_unique,unique" json:"source_event_id"`        // 来源支付事件ID
	SourceObjectID     string    `gorm:"index" json:"source_object_id"`                                                         // 来源对象ID（退款冲正定位用）
	Amount             Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"`                                   // 佣金金额
	IsFirstPayment     bool      `gorm:"not null;default:false" json:"is_first_payment"`                                        // 是否患者首笔有效支付
	Status             string    `gorm:"type:varchar(32);not null;index" json:"status"`                                         // 状态（pending/approved/reversed）
	RiskScore          int       `gorm:"not null;default:0" json:"risk_score"`                                                  // 风控得分
	FraudHold          bool      `gorm:"not null;default:false;index" json:"fraud_hold"`                                        // 风控冻结（待人工复核）
	ReversedAt         *time.Time `json:"reversed_at,omitempty"`                                                                // 冲正时间
	CreatedAt          time.Time `gorm:"index" json:"created_at"`                                                               // 创建时间
	UpdatedAt          time.Time `json:"updated_at"`                                                                            // 更新时间
}

// TableName 指定表名
func (CommissionEvent) TableName() string {
	return "commission_events"
}

// CommissionLedger 佣金账务流水（只增不改，冲正以负数流水体现）
type CommissionLedger struct {
	ID                uint      `gorm:"primarykey" json:"id"`                                // 主键
	CommissionEventID uint      `gorm:"index;not null" json:"commission_event_id"`           // 关联佣金记录
	EntryType         string    `gorm:"type:varchar(20);not null" json:"entry_type"`         // 流水类型（credit/reversal）
	Amount            Money     `gorm:"type:decimal(20,2);not null;default:0" json:"amount"` // 有符号金额
	Memo              string    `gorm:"type:varchar(255)" json:"memo"`                       // 备注
	CreatedAt         time.Time `gorm:"index" json:"created_at"`                             // 创建时间
}

// TableName 指定表名
func (CommissionLedger) TableName() string {
	return "commission_ledgers"
}
