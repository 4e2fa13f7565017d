package repository

import "time"

// CommissionListFilter 查询佣金记录列表的过滤条件
type CommissionListFilter struct {
	Page               int
	PageSize           int
	AffiliateProfileID uint
	PatientID          uint
	ClinicID           uint
	Status             string
	FraudHold          *bool
	CreatedFrom        *time.Time
	CreatedTo          *time.Time
}

// FraudAlertListFilter 查询风控告警列表的过滤条件
type FraudAlertListFilter struct {
	Page               int
	PageSize           int
	AffiliateProfileID uint
	AlertType          string
	Severity           string
	Status             string
	CreatedFrom        *time.Time
	CreatedTo          *time.Time
}

// DeadLetterListFilter 查询死信事件列表的过滤条件
type DeadLetterListFilter struct {
	Page        int
	PageSize    int
	EventType   string
	Resolved    *bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// ReconciliationRunListFilter 查询对账运行列表的过滤条件
type ReconciliationRunListFilter struct {
	Page     int
	PageSize int
	Status   string
}

// RefillQueueListFilter 查询续方队列列表的过滤条件
type RefillQueueListFilter struct {
	Page      int
	PageSize  int
	PatientID uint
	ClinicID  uint
	Status    string
}
