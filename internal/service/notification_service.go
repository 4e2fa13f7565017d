package service

import (
	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/queue"
)

// NotificationService 运维告警通知服务。
// 纯旁路：通知失败只记日志，绝不影响调用方自身的操作结果。
type NotificationService struct {
	queueClient *queue.Client
}

// NewNotificationService 创建通知服务
func NewNotificationService(queueClient *queue.Client) *NotificationService {
	return &NotificationService{queueClient: queueClient}
}

// AlertReconciliationFailures 对账发现失败时告警
func (s *NotificationService) AlertReconciliationFailures(runID uint, missing, failed int) {
	s.enqueue(queue.OpsAlertPayload{
		Kind:    "reconciliation_failures",
		Subject: "reconciliation sweep found unrecovered events",
		Detail: map[string]interface{}{
			"run_id":  runID,
			"missing": missing,
			"failed":  failed,
		},
	})
}

// AlertFraudCritical 风控致命告警
func (s *NotificationService) AlertFraudCritical(affiliateProfileID uint, sourceEventID string, riskScore int) {
	s.enqueue(queue.OpsAlertPayload{
		Kind:    "fraud_critical",
		Subject: "commission attribution rejected by fraud gate",
		Detail: map[string]interface{}{
			"affiliate_profile_id": affiliateProfileID,
			"source_event_id":      sourceEventID,
			"risk_score":           riskScore,
		},
	})
}

// AlertDeadLetter 死信落库告警
func (s *NotificationService) AlertDeadLetter(externalEventID, reason string) {
	s.enqueue(queue.OpsAlertPayload{
		Kind:    "dead_letter",
		Subject: "payment event processing failed",
		Detail: map[string]interface{}{
			"external_event_id": externalEventID,
			"reason":            reason,
		},
	})
}

func (s *NotificationService) enqueue(payload queue.OpsAlertPayload) {
	if s == nil || s.queueClient == nil {
		return
	}
	if err := s.queueClient.EnqueueOpsAlert(payload); err != nil {
		logger.Warnw("ops_alert_enqueue_failed", "kind", payload.Kind, "error", err)
	}
}
