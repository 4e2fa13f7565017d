package public

import (
	"errors"
	"strings"

	"github.com/eonpro/eonpro-sub008/internal/http/response"
	"github.com/eonpro/eonpro-sub008/internal/queue"
	"github.com/eonpro/eonpro-sub008/internal/service"

	"github.com/gin-gonic/gin"
)

// TriggerReconcileRequest 手动触发对账扫描请求
type TriggerReconcileRequest struct {
	WindowHours int `json:"window_hours"`
}

// TriggerReconcile 手动触发一次对账扫描。
// 鉴权走独立的触发密钥，和管理端 JWT 解耦，方便 cron/运维脚本调用。
func (h *Handler) TriggerReconcile(c *gin.Context) {
	log := requestLog(c)
	secret := strings.TrimSpace(c.GetHeader("X-Reconcile-Secret"))
	if err := h.ReconciliationService.VerifyTriggerSecret(secret); err != nil {
		log.Warnw("reconcile_trigger_rejected", "client_ip", c.ClientIP())
		respondError(c, response.CodeUnauthorized, "invalid trigger secret", nil)
		return
	}

	var req TriggerReconcileRequest
	_ = c.ShouldBindJSON(&req)

	if h.QueueClient != nil && h.QueueClient.Enabled() {
		if err := h.QueueClient.EnqueueReconciliationRun(queue.ReconciliationRunPayload{
			WindowHours: req.WindowHours,
		}); err != nil {
			log.Errorw("reconcile_trigger_enqueue_failed", "error", err)
			respondError(c, response.CodeInternal, "enqueue reconciliation failed", err)
			return
		}
		log.Infow("reconcile_trigger_enqueued", "window_hours", req.WindowHours)
		response.Success(c, gin.H{"enqueued": true})
		return
	}

	run, err := h.ReconciliationService.Run(c.Request.Context(), req.WindowHours)
	if err != nil {
		if errors.Is(err, service.ErrReconcileDisabled) {
			respondError(c, response.CodeBadRequest, "reconciliation disabled", nil)
			return
		}
		log.Errorw("reconcile_trigger_run_failed", "error", err)
		respondError(c, response.CodeInternal, "reconciliation run failed", err)
		return
	}
	response.Success(c, gin.H{"enqueued": false, "run": run})
}
