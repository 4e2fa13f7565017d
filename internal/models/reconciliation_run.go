package models

import "time"

// ReconciliationRun 对账运行记录
type ReconciliationRun struct {
	ID            uint       `gorm:"primarykey" json:"id"`                          // 主键
	RunUID        string     `gorm:"type:varchar(36);uniqueIndex" json:"run_uid"`   // 对外运行标识
	WindowStart   time.Time  `gorm:"not null" json:"window_start"`                  // 对账窗口开始
	WindowEnd     time.Time  `gorm:"not null" json:"window_end"`                    // 对账窗口结束
	Status        string     `gorm:"type:varchar(20);not null;index" json:"status"` // 运行状态
	TotalUpstream int        `gorm:"not null;default:0" json:"total_upstream"`      // 上游事件总数
	MissingCount  int        `gorm:"not null;default:0" json:"missing_count"`       // 缺失事件数
	ReplayedCount int        `gorm:"not null;default:0" json:"replayed_count"`      // 已补放事件数
	ErrorMessage  string     `gorm:"type:varchar(500)" json:"error_message"`        // 失败原因
	FinishedAt    *time.Time `json:"finished_at,omitempty"`                         // 完成时间
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt     time.Time  `json:"updated_at"`                                    // 更新时间
}

// TableName 指定表名
func (ReconciliationRun) TableName() string {
	return "reconciliation_runs"
}
