package models

import "time"

// RefillQueueEntry 续方队列条目
// 患者续费成功后由支付事件自动匹配推进状态。
type RefillQueueEntry struct {
	ID                uint       `gorm:"primarykey" json:"id"`                                         // 主键
	PatientID         uint       `gorm:"index;not null" json:"patient_id"`                             // 患者ID
	ClinicID          uint       `gorm:"index;not null" json:"clinic_id"`                              // 诊所ID
	MedicationName    string     `gorm:"type:varchar(200)" json:"medication_name"`                     // 药品名称
	ExpectedAmount    Money      `gorm:"type:decimal(20,2);not null;default:0" json:"expected_amount"` // 预期支付金额
	Status            string     `gorm:"type:varchar(32);not null;index" json:"status"`                // 队列状态
	MatchedEventID    string     `gorm:"type:varchar(100);index" json:"matched_event_id"`              // 命中的支付事件ID
	MatchedInvoiceRef string     `gorm:"type:varchar(100)" json:"matched_invoice_ref"`                 // 命中支付关联的账单号
	MatchedAmount     Money      `gorm:"type:decimal(20,2);not null;default:0" json:"matched_amount"`  // 实际支付金额
	AmountMismatch    bool       `gorm:"not null;default:false" json:"amount_mismatch"`                // 金额不符需人工复核
	PaymentMatchedAt  *time.Time `json:"payment_matched_at,omitempty"`                                 // 支付匹配时间
	ScheduledFor      *time.Time `gorm:"index" json:"scheduled_for,omitempty"`                         // 计划续方时间
	CreatedAt         time.Time  `gorm:"index" json:"created_at"`                                      // 创建时间
	UpdatedAt         time.Time  `json:"updated_at"`                                                   // 更新时间
}

// TableName 指定表名
func (RefillQueueEntry) TableName() string {
	return "refill_queue_entries"
}
