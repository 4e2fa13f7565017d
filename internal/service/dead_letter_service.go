package service

import (
	"context"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/billing"
	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/models"
	"github.com/eonpro/eonpro-sub008/internal/repository"
)

// DeadLetterService 死信管理服务。承载管理端查询和按条重放。
type DeadLetterService struct {
	repo       repository.DeadLetterRepository
	dispatcher *DispatcherService
}

// NewDeadLetterService 创建死信服务
func NewDeadLetterService(repo repository.DeadLetterRepository, dispatcher *DispatcherService) *DeadLetterService {
	return &DeadLetterService{repo: repo, dispatcher: dispatcher}
}

// List 查询死信列表
func (s *DeadLetterService) List(filter repository.DeadLetterListFilter) ([]models.DeadLetterEvent, int64, error) {
	return s.repo.List(filter)
}

// Get 按ID获取死信
func (s *DeadLetterService) Get(id uint) (*models.DeadLetterEvent, error) {
	entry, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrDeadLetterNotFound
	}
	return entry, nil
}

// Retry 重放一条死信。从原始报文重建事件后走正常分发路径，
// 幂等键保证已部分生效的事件不会二次入账。分发成功则标记恢复，
// 失败只累加重试计数。
func (s *DeadLetterService) Retry(ctx context.Context, id uint) (*DispatchOutcome, error) {
	entry, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrDeadLetterNotFound
	}
	if entry.Resolved {
		return &DispatchOutcome{Applied: true, Detail: "already_resolved"}, nil
	}
	if len(entry.RawPayload) == 0 {
		return nil, ErrDeadLetterUnreplayable
	}

	event, err := billing.ParseEvent(map[string]interface{}(entry.RawPayload))
	if err != nil {
		logger.Warnw("dead_letter_payload_unreplayable",
			"dead_letter_id", entry.ID,
			"external_event_id", entry.ExternalEventID,
			"error", err)
		return nil, ErrDeadLetterUnreplayable
	}

	outcome := s.dispatcher.Dispatch(ctx, event)
	now := time.Now().UTC()
	if outcome.Applied || outcome.Detail == "already_processed" {
		if err := s.repo.MarkResolved(entry.ID, now); err != nil {
			return nil, err
		}
		logger.Infow("dead_letter_resolved",
			"dead_letter_id", entry.ID,
			"external_event_id", entry.ExternalEventID,
			"retry_count", entry.RetryCount+1)
		return outcome, nil
	}

	if err := s.repo.RecordRetry(entry.ID, now); err != nil {
		return nil, err
	}
	logger.Warnw("dead_letter_retry_failed",
		"dead_letter_id", entry.ID,
		"external_event_id", entry.ExternalEventID,
		"detail", outcome.Detail)
	return outcome, nil
}
