package admin

import (
	"strings"

	"github.com/eonpro/eonpro-sub008/internal/http/response"

	"github.com/gin-gonic/gin"
)

// GetSubscription 按上游订阅ID获取订阅投影
func (h *Handler) GetSubscription(c *gin.Context) {
	externalID := strings.TrimSpace(c.Param("external_id"))
	if externalID == "" {
		respondError(c, response.CodeBadRequest, "external_id is required", nil)
		return
	}
	sub, err := h.SubscriptionService.GetByExternalID(externalID)
	if err != nil {
		respondError(c, response.CodeInternal, "subscription fetch failed", err)
		return
	}
	if sub == nil {
		respondError(c, response.CodeNotFound, "subscription not found", nil)
		return
	}
	response.Success(c, sub)
}
