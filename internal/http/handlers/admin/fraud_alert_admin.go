package admin

import (
	"strings"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/http/response"
	"github.com/eonpro/eonpro-sub008/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListFraudAlerts 获取风控告警列表
func (h *Handler) ListFraudAlerts(c *gin.Context) {
	page, pageSize := queryPagination(c)

	profileID, err := parseUintQuery(c, "affiliate_profile_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid affiliate_profile_id", err)
		return
	}
	createdFrom, err := parseTimeNullable(strings.TrimSpace(c.Query("created_from")))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid created_from", err)
		return
	}
	createdTo, err := parseTimeNullable(strings.TrimSpace(c.Query("created_to")))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid created_to", err)
		return
	}

	alerts, total, err := h.FraudAlertRepo.List(repository.FraudAlertListFilter{
		Page:               page,
		PageSize:           pageSize,
		AffiliateProfileID: profileID,
		AlertType:          strings.TrimSpace(c.Query("alert_type")),
		Severity:           strings.TrimSpace(c.Query("severity")),
		Status:             strings.TrimSpace(c.Query("status")),
		CreatedFrom:        createdFrom,
		CreatedTo:          createdTo,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "fraud alert list failed", err)
		return
	}
	response.SuccessWithPage(c, alerts, pageOf(page, pageSize, total))
}

// ResolveFraudAlertRequest 告警处理请求
type ResolveFraudAlertRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

// ResolveFraudAlert 将告警标记为已处理
func (h *Handler) ResolveFraudAlert(c *gin.Context) {
	log := requestLog(c)
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid alert id", err)
		return
	}
	var req ResolveFraudAlertRequest
	_ = c.ShouldBindJSON(&req)
	resolvedBy := strings.TrimSpace(req.ResolvedBy)
	if resolvedBy == "" {
		if username, ok := c.Get("username"); ok {
			if name, ok := username.(string); ok {
				resolvedBy = name
			}
		}
	}
	if resolvedBy == "" {
		respondError(c, response.CodeBadRequest, "resolved_by is required", nil)
		return
	}

	alert, err := h.FraudAlertRepo.GetByID(id)
	if err != nil {
		respondError(c, response.CodeInternal, "fraud alert fetch failed", err)
		return
	}
	if alert == nil {
		respondError(c, response.CodeNotFound, "fraud alert not found", nil)
		return
	}
	if err := h.FraudAlertRepo.Resolve(id, resolvedBy, time.Now().UTC()); err != nil {
		respondError(c, response.CodeInternal, "fraud alert resolve failed", err)
		return
	}
	log.Infow("fraud_alert_resolved", "alert_id", id, "resolved_by", resolvedBy)
	response.Success(c, gin.H{"resolved": true})
}
