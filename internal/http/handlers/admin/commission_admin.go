package admin

import (
	"strings"

	"github.com/eonpro/eonpro-sub008/internal/http/response"
	"github.com/eonpro/eonpro-sub008/internal/repository"

	"github.com/gin-gonic/gin"
)

// ListCommissions 获取佣金记录列表
func (h *Handler) ListCommissions(c *gin.Context) {
	page, pageSize := queryPagination(c)

	profileID, err := parseUintQuery(c, "affiliate_profile_id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid affiliate_profile_id", err)
		return
	}
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
	fraudHold, err := parseBoolNullable(strings.TrimSpace(c.Query("fraud_hold")))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid fraud_hold flag", err)
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

	events, total, err := h.CommissionService.ListEvents(repository.CommissionListFilter{
		Page:               page,
		PageSize:           pageSize,
		AffiliateProfileID: profileID,
		PatientID:          patientID,
		ClinicID:           clinicID,
		Status:             strings.TrimSpace(c.Query("status")),
		FraudHold:          fraudHold,
		CreatedFrom:        createdFrom,
		CreatedTo:          createdTo,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "commission list failed", err)
		return
	}
	response.SuccessWithPage(c, events, pageOf(page, pageSize, total))
}

// GetCommissionLedger 获取单条佣金记录的台账明细
func (h *Handler) GetCommissionLedger(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid commission id", err)
		return
	}
	entries, err := h.CommissionService.ListLedger(id)
	if err != nil {
		respondError(c, response.CodeInternal, "commission ledger fetch failed", err)
		return
	}
	response.Success(c, entries)
}
