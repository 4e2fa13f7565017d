package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/provider"
	"github.com/eonpro/eonpro-sub008/internal/queue"
	"github.com/eonpro/eonpro-sub008/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOpsAlert, c.handleOpsAlert)
	mux.HandleFunc(queue.TaskDeadLetterRetry, c.handleDeadLetterRetry)
	mux.HandleFunc(queue.TaskReconciliationRun, c.handleReconciliationRun)
}

// handleOpsAlert 运维告警落到结构化日志，由日志采集侧接值班通道。
func (c *Consumer) handleOpsAlert(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.OpsAlertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_ops_alert_unmarshal_failed", "error", err)
		return err
	}
	logger.Errorw("ops_alert",
		"kind", payload.Kind,
		"subject", payload.Subject,
		"detail", payload.Detail,
	)
	return nil
}

func (c *Consumer) handleDeadLetterRetry(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.DeadLetterRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_dead_letter_retry_unmarshal_failed", "error", err)
		return err
	}
	if payload.DeadLetterID == 0 {
		logger.Debugw("worker_dead_letter_retry_skip_invalid_payload", "dead_letter_id", payload.DeadLetterID)
		return nil
	}
	outcome, err := c.DeadLetterService.Retry(ctx, payload.DeadLetterID)
	if err != nil {
		// 不存在或无法重放的死信重试也不会恢复，直接吞掉。
		if errors.Is(err, service.ErrDeadLetterNotFound) || errors.Is(err, service.ErrDeadLetterUnreplayable) {
			logger.Warnw("worker_dead_letter_retry_skipped", "dead_letter_id", payload.DeadLetterID, "error", err)
			return nil
		}
		logger.Warnw("worker_dead_letter_retry_failed", "dead_letter_id", payload.DeadLetterID, "error", err)
		return err
	}
	logger.Infow("worker_dead_letter_retry_done",
		"dead_letter_id", payload.DeadLetterID,
		"applied", outcome.Applied,
		"outcome", outcome.Detail,
	)
	return nil
}

func (c *Consumer) handleReconciliationRun(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		return nil
	}
	var payload queue.ReconciliationRunPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_reconciliation_run_unmarshal_failed", "error", err)
		return err
	}
	run, err := c.ReconciliationService.Run(ctx, payload.WindowHours)
	if err != nil {
		if errors.Is(err, service.ErrReconcileDisabled) {
			logger.Debugw("worker_reconciliation_run_skip_disabled")
			return nil
		}
		logger.Warnw("worker_reconciliation_run_failed", "window_hours", payload.WindowHours, "error", err)
		return err
	}
	logger.Infow("worker_reconciliation_run_done",
		"run_id", run.ID,
		"total_upstream", run.TotalUpstream,
		"missing", run.MissingCount,
		"replayed", run.ReplayedCount,
		"status", run.Status,
	)
	return nil
}
