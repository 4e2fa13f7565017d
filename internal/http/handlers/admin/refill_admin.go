package admin

import (
	"strings"

	"github.com/eonpro/eonpro-sub008/internal/http/response"
	"github.com/eonpro/eonpro-sub008/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListRefillQueue 获取续方队列列表
func (h *Handler) ListRefillQueue(c *gin.Context) {
	page, pageSize := queryPagination(c)

	patientID, err := parseUintQuery(c, "patient_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid patient_id", err)
		return
	}
	clinicID, err := parseUintQuery(c, "clinic_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid clinic_id", err)
		return
	}

	entries, total, err := h.RefillService.List(repository.RefillQueueListFilter{
		Page:      page,
		PageSize:  pageSize,
		PatientID: patientID,
		ClinicID:  clinicID,
		Status:    strings.TrimSpace(c.Query("status")),
	})
	if err != nil {
		respondError(c, response.CodeInternal, "refill queue list failed", err)
		return
	}
	response.SuccessWithPage(c, entries, pageOf(page, pageSize, total))
}
