package models

import "time"

// DeadLetterEvent 处理失败的死信事件
// 网关始终向上游确认接收，处理失败的事件落入死信表等待重试。
type DeadLetterEvent struct {
	ID              uint       `gorm:"primarykey" json:"id"`                                   // 主键
	ExternalEventID string     `gorm:"type:varchar(100);uniqueIndex;not null" json:"external_event_id"` // 上游事件ID
	EventType       string     `gorm:"type:varchar(50);not null" json:"event_type"`            // 原始事件类型
	FailureReason   string     `gorm:"type:varchar(500)" json:"failure_reason"`                // 失败原因
	RawPayload      JSON       `gorm:"type:json" json:"raw_payload"`                           // 原始报文
	RetryCount      int        `gorm:"not null;default:0" json:"retry_count"`                  // 已重试次数
	RequiresReview  bool       `gorm:"not null;default:false;index" json:"requires_review"`    // 需人工复核
	LastRetryAt     *time.Time `json:"last_retry_at,omitempty"`                                // 最近重试时间
	Resolved        bool       `gorm:"not null;default:false;index" json:"resolved"`           // 是否已恢复
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`                                  // 恢复时间
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`                                // 创建时间
	UpdatedAt       time.Time  `json:"updated_at"`                                             // 更新时间
}

// TableName 指定表名
func (DeadLetterEvent) TableName() string {
	return "dead_letter_events"
}
