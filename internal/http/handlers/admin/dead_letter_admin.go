package admin

import (
	"errors"
	"strings"

	"github.com/eonpro/eonpro-sub008/internal/http/response"
	"github.com/eonpro/eonpro-sub008/internal/queue"
	"github.com/eonpro/eonpro-sub008/internal/repository"
	"github.com/eonpro/eonpro-sub008/internal/service"

	"github.com/gin-gonic/gin"
)

// ListDeadLetters 获取死信事件列表
func (h *Handler) ListDeadLetters(c *gin.Context) {
	page, pageSize := queryPagination(c)

	eventType := strings.TrimSpace(c.Query("event_type"))
	resolved, err := parseBoolNullable(strings.TrimSpace(c.Query("resolved")))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid resolved flag", err)
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

	entries, total, err := h.DeadLetterService.List(repository.DeadLetterListFilter{
		Page:        page,
		PageSize:    pageSize,
		EventType:   eventType,
		Resolved:    resolved,
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
	})
	if err != nil {
		respondError(c, response.CodeInternal, "dead letter list failed", err)
		return
	}
	response.SuccessWithPage(c, entries, pageOf(page, pageSize, total))
}

// GetDeadLetter 获取死信事件详情
func (h *Handler) GetDeadLetter(c *gin.Context) {
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid dead letter id", err)
		return
	}
	entry, err := h.DeadLetterService.Get(id)
	if err != nil {
		if errors.Is(err, service.ErrDeadLetterNotFound) {
			respondError(c, response.CodeNotFound, "dead letter not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "dead letter fetch failed", err)
		return
	}
	response.Success(c, entry)
}

// RetryDeadLetter 重放一条死信事件。
// 队列可用时走异步任务，否则同步重放并直接返回结果。
func (h *Handler) RetryDeadLetter(c *gin.Context) {
	log := requestLog(c)
	id, err := parseUintParam(c, "id")
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid dead letter id", err)
		return
	}

	if h.QueueClient != nil && h.QueueClient.Enabled() {
		if err := h.QueueClient.EnqueueDeadLetterRetry(queue.DeadLetterRetryPayload{DeadLetterID: id}); err != nil {
			log.Errorw("dead_letter_retry_enqueue_failed", "dead_letter_id", id, "error", err)
			respondError(c, response.CodeInternal, "enqueue retry failed", err)
			return
		}
		log.Infow("dead_letter_retry_enqueued", "dead_letter_id", id)
		response.Success(c, gin.H{"enqueued": true})
		return
	}

	outcome, err := h.DeadLetterService.Retry(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrDeadLetterNotFound):
			respondError(c, response.CodeNotFound, "dead letter not found", nil)
		case errors.Is(err, service.ErrDeadLetterUnreplayable):
			respondError(c, response.CodeBadRequest, "dead letter not replayable", nil)
		default:
			log.Errorw("dead_letter_retry_failed", "dead_letter_id", id, "error", err)
			respondError(c, response.CodeInternal, "dead letter retry failed", err)
		}
		return
	}
	log.Infow("dead_letter_retry_done",
		"dead_letter_id", id,
		"applied", outcome.Applied,
		"outcome", outcome.Detail,
	)
	response.Success(c, gin.H{
		"enqueued": false,
		"applied":  outcome.Applied,
		"outcome":  outcome.Detail,
	})
}
