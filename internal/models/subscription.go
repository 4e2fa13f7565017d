package models

import "time"

// Subscription 订阅投影（上游账单系统订阅对象的本地只读副本）
type Subscription struct {
	ID                 uint       `gorm:"primarykey" json:"id"`                               // 主键
	ExternalID         string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"external_id"` // 上游订阅ID
	PatientID          uint       `gorm:"index" json:"patient_id"`                            // 患者ID
	ClinicID           uint       `gorm:"index" json:"clinic_id"`                             // 诊所ID
	CustomerRef        string     `gorm:"type:varchar(100);index" json:"customer_ref"`        // 上游客户标识
	Status             string     `gorm:"type:varchar(32);not null;index" json:"status"`      // 订阅状态
	BillingInterval    string     `gorm:"type:varchar(20);not null" json:"billing_interval"`  // 计费周期（monthly/quarterly/semiannual/annual）
	IntervalUnit       string     `gorm:"type:varchar(10)" json:"interval_unit"`              // 上游周期单位
	IntervalCount      int        `gorm:"not null;default:1" json:"interval_count"`           // 上游周期数量
	Amount             Money      `gorm:"type:decimal(20,2);not null;default:0" json:"amount"` // 每期金额
	Currency           string     `gorm:"type:varchar(10)" json:"currency"`                   // 币种
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`                     // 本期开始
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`                       // 本期结束
	NextBillingAt      *time.Time `json:"next_billing_at,omitempty"`                          // 下次扣费时间（非活跃为空）
	CancelAtPeriodEnd  bool       `gorm:"not null;default:false" json:"cancel_at_period_end"` // 期末取消
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`                              // 取消时间
	CreatedAt          time.Time  `gorm:"index" json:"created_at"`                            // 创建时间
	UpdatedAt          time.Time  `json:"updated_at"`                                         // 更新时间
}

// TableName 指定表名
func (Subscription) TableName() string {
	return "subscriptions"
}
