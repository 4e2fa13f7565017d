package queue

import (
	"encoding/json"

	"github.com/eonpro/eonpro-sub008/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOpsAlert 运维告警通知任务
	TaskOpsAlert = constants.TaskOpsAlert
	// TaskDeadLetterRetry 死信重放任务
	TaskDeadLetterRetry = constants.TaskDeadLetterRetry
	// TaskReconciliationRun 对账扫描任务
	TaskReconciliationRun = constants.TaskReconciliationRun
)

// OpsAlertPayload 运维告警任务载荷
type OpsAlertPayload struct {
	Kind    string                 `json:"kind"`
	Subject string                 `json:"subject"`
	Detail  map[string]interface{} `json:"detail,omitempty"`
}

// DeadLetterRetryPayload 死信重放任务载荷
type DeadLetterRetryPayload struct {
	DeadLetterID uint `json:"dead_letter_id"`
}

// ReconciliationRunPayload 对账扫描任务载荷
type ReconciliationRunPayload struct {
	WindowHours int `json:"window_hours"`
}

// NewOpsAlertTask 创建运维告警任务
func NewOpsAlertTask(payload OpsAlertPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOpsAlert, body), nil
}

// NewDeadLetterRetryTask 创建死信重放任务
func NewDeadLetterRetryTask(payload DeadLetterRetryPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeadLetterRetry, body), nil
}

// NewReconciliationRunTask 创建对账扫描任务
func NewReconciliationRunTask(payload ReconciliationRunPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconciliationRun, body), nil
}
