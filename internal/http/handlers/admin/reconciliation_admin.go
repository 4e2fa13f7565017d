package admin

import (
	"strings"

	"github.com/eonpro/eonpro-sub008/internal/http/response"
	"github.com/eonpro/eonpro-sub008/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListReconciliationRuns 获取对账运行列表
func (h *Handler) ListReconciliationRuns(c *gin.Context) {
	page, pageSize := queryPagination(c)

	runs, total, err := h.ReconciliationService.ListRuns(repository.ReconciliationRunListFilter{
		Page:     page,
		PageSize: pageSize,
		Status:   strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "reconciliation run list failed", err)
		return
	}
	response.SuccessWithPage(c, runs, pageOf(page, pageSize, total))
}
