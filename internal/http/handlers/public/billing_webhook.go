package public

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/billing"
	"github.com/eonpro/eonpro-sub008/internal/http/response"

	"github.com/gin-gonic/gin"
)

const webhookLogValueLimit = 256

func truncateWebhookLogValue(value string) string {
	if len(value) <= webhookLogValueLimit {
		return value
	}
	return value[:webhookLogValueLimit] + "...(truncated)"
}

// respondWebhookRejection 以真实的 HTTP 400 拒绝回调。
// 网关按 HTTP 状态码判定投递结果，这里不能走业务码包装。
func respondWebhookRejection(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response.Response{
		StatusCode: response.CodeBadRequest,
		Msg:        msg,
	})
}

// BillingWebhook 计费处理方 webhook 回调。
// 仅签名失败返回 400；事件落库后的任何下游异常都由分发器收口成死信，
// 这里始终对网关确认，避免上游无意义的重发风暴。
func (h *Handler) BillingWebhook(c *gin.Context) {
	log := requestLog(c)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Warnw("billing_webhook_body_read_failed", "error", err)
		respondWebhookRejection(c, "invalid request body")
		return
	}
	log.Infow("billing_webhook_received",
		"client_ip", c.ClientIP(),
		"body_size", len(body),
		"signature", truncateWebhookLogValue(strings.TrimSpace(c.GetHeader("Stripe-Signature"))),
	)

	headers := make(map[string]string)
	for key, values := range c.Request.Header {
		if len(values) == 0 {
			continue
		}
		headers[key] = values[0]
	}

	webhookCfg := &billing.Config{
		APIKey:                  h.Config.Billing.APIKey,
		WebhookSecret:           h.Config.Billing.WebhookSecret,
		APIBaseURL:              h.Config.Billing.APIBaseURL,
		WebhookToleranceSeconds: h.Config.Billing.WebhookToleranceS,
	}
	event, err := billing.VerifyAndParseWebhook(webhookCfg, headers, body, time.Now().UTC())
	if err != nil {
		if errors.Is(err, billing.ErrSignatureInvalid) {
			log.Warnw("billing_webhook_signature_invalid", "client_ip", c.ClientIP(), "error", err)
			respondWebhookRejection(c, "invalid signature")
			return
		}
		// 签名通过但载荷不完整：确认但不处理，重发同样无法解析。
		log.Warnw("billing_webhook_payload_invalid", "error", err, "raw_body", truncateWebhookLogValue(string(body)))
		response.Success(c, gin.H{
			"accepted": true,
			"applied":  false,
			"outcome":  "unparseable",
		})
		return
	}

	outcome := h.DispatcherService.Dispatch(c.Request.Context(), event)
	log.Infow("billing_webhook_dispatched",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"applied", outcome.Applied,
		"outcome", outcome.Detail,
	)
	response.Success(c, gin.H{
		"accepted": true,
		"applied":  outcome.Applied,
		"outcome":  outcome.Detail,
	})
}
