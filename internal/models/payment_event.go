package models

import (
	"time"
)

// PaymentEvent 计费处理方事件记录（external_event_id 即幂等键）
type PaymentEvent struct {
	ID              uint       `gorm:"primarykey" json:"id"`                             // 主键
	ExternalEventID string     `gorm:"uniqueIndex;not null" json:"external_event_id"`    // 处理方事件ID（幂等键）
	EventType       string     `gorm:"index;not null" json:"event_type"`                 // 处理方原始事件类型
	Kind            string     `gorm:"index;not null" json:"kind"`                       // 解析后的事件分类
	SourceObjectID  string     `gorm:"index" json:"source_object_id"`                    // 来源对象ID（charge/intent/session）
	ChargeID        string     `gorm:"index" json:"charge_id"`                           // 会话内的 charge 腿（用于去重判断）
	CustomerRef     string     `gorm:"index" json:"customer_ref"`                        // 处理方客户标识
	Amount          Money      `gorm:"type:decimal(20,2);not null;default:0" json:"amount"` // 金额
	Currency        string     `json:"currency"`                                         // 币种
	OccurredAt      time.Time  `gorm:"index" json:"occurred_at"`                         // 处理方侧发生时间
	Processed       bool       `gorm:"index;not null;default:false" json:"processed"`    // 是否已生效
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`                           // 生效时间
	RawPayload      JSON       `gorm:"type:json" json:"raw_payload"`                     // 原始载荷（审计/重放）
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`                          // 创建时间
	UpdatedAt       time.Time  `json:"updated_at"`                                       // 更新时间
}

// TableName 指定表名
func (PaymentEvent) TableName() string {
	return "payment_events"
}
