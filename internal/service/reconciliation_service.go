package service

import (
	"context"
	"strings"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/billing"
	"github.com/eonpro/eonpro-sub008/internal/config"
	"github.com/eonpro/eonpro-sub008/internal/constants"
	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/models"
	"github.com/eonpro/eonpro-sub008/internal/repository"

	"github.com/google/uuid"
)

// BillingEventLister 上游事件拉取接口（对账扫描用）
type BillingEventLister interface {
	ListSucceededEvents(ctx context.Context, since time.Time, pageSize int) ([]*billing.InboundEvent, error)
}

// ReconciliationService 对账扫描服务。
// 独立于 webhook 通道，定期把上游成功事件与本地记录对齐，
// 缺失的事件走同一条分发路径补放。与在线流量并发执行时靠
// 自然键唯一约束收敛，先提交者生效，后到者观察到已处理即退出。
type ReconciliationService struct {
	repo       repository.ReconciliationRepository
	eventRepo  repository.PaymentEventRepository
	dispatcher *DispatcherService
	lister     BillingEventLister
	notifySvc  *NotificationService
	cfg        config.ReconcileConfig
}

// NewReconciliationService 创建对账服务
func NewReconciliationService(
	repo repository.ReconciliationRepository,
	eventRepo repository.PaymentEventRepository,
	dispatcher *DispatcherService,
	lister BillingEventLister,
	notifySvc *NotificationService,
	cfg config.ReconcileConfig,
) *ReconciliationService {
	return &ReconciliationService{
		repo:       repo,
		eventRepo:  eventRepo,
		dispatcher: dispatcher,
		lister:     lister,
		notifySvc:  notifySvc,
		cfg:        cfg,
	}
}

// VerifyTriggerSecret 校验管理触发密钥（与 webhook 签名密钥相互独立）
func (s *ReconciliationService) VerifyTriggerSecret(secret string) error {
	expected := strings.TrimSpace(s.cfg.TriggerSecret)
	if expected == "" || strings.TrimSpace(secret) != expected {
		return ErrReconcileSecretInvalid
	}
	return nil
}

// Run 执行一轮对账扫描。重复触发是安全的：已有本地记录的事件
// 不会二次生效。
func (s *ReconciliationService) Run(ctx context.Context, windowHours int) (*models.ReconciliationRun, error) {
	if !s.cfg.Enabled || s.lister == nil {
		return nil, ErrReconcileDisabled
	}
	if windowHours <= 0 {
		windowHours = s.cfg.WindowHours
	}
	if windowHours <= 0 {
		windowHours = 48
	}

	now := time.Now().UTC()
	windowStart := now.Add(-time.Duration(windowHours) * time.Hour)
	run := &models.ReconciliationRun{
		RunUID:      uuid.NewString(),
		WindowStart: windowStart,
		WindowEnd:   now,
		Status:      constants.ReconciliationRunStatusRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(run); err != nil {
		return nil, err
	}

	upstream, err := s.lister.ListSucceededEvents(ctx, windowStart, s.cfg.PageSize)
	if err != nil {
		finishErr := s.repo.Finish(run.ID, constants.ReconciliationRunStatusFailed, 0, 0, 0, err.Error(), time.Now().UTC())
		if finishErr != nil {
			logger.Errorw("reconciliation_finish_failed", "run_id", run.ID, "error", finishErr)
		}
		return nil, err
	}

	known := make(map[string]struct{})
	knownIDs, err := s.eventRepo.ListExternalIDsBetween(windowStart.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		finishErr := s.repo.Finish(run.ID, constants.ReconciliationRunStatusFailed, len(upstream), 0, 0, err.Error(), time.Now().UTC())
		if finishErr != nil {
			logger.Errorw("reconciliation_finish_failed", "run_id", run.ID, "error", finishErr)
		}
		return nil, err
	}
	for _, id := range knownIDs {
		known[id] = struct{}{}
	}

	missing := 0
	replayed := 0
	failed := 0
	for _, event := range upstream {
		if _, ok := known[event.EventID]; ok {
			continue
		}
		// 漏网判定以幂等键兜底：窗口过滤漏掉的已知事件
		// 在分发器里仍会观察到 already_processed
		existing, err := s.eventRepo.GetByExternalID(event.EventID)
		if err != nil {
			failed++
			continue
		}
		if existing != nil && existing.Processed {
			continue
		}
		missing++
		outcome := s.dispatcher.Dispatch(ctx, event)
		if dispatchRecovered(outcome) {
			replayed++
		} else {
			failed++
		}
	}

	status := constants.ReconciliationRunStatusCompleted
	if err := s.repo.Finish(run.ID, status, len(upstream), missing, replayed, "", time.Now().UTC()); err != nil {
		logger.Errorw("reconciliation_finish_failed", "run_id", run.ID, "error", err)
	}
	logger.Infow("reconciliation_completed",
		"run_id", run.ID,
		"window_hours", windowHours,
		"total_upstream", len(upstream),
		"missing", missing,
		"replayed", replayed,
		"failed", failed)
	if failed > 0 {
		s.notifySvc.AlertReconciliationFailures(run.ID, missing, failed)
	}

	return s.repo.GetByID(run.ID)
}

// dispatchRecovered 补放结果判定：实际生效或到达终态
// （重复、被取代、预期跳过）都算恢复，只有落入死信的算失败。
func dispatchRecovered(outcome *DispatchOutcome) bool {
	if outcome == nil {
		return false
	}
	if outcome.Applied {
		return true
	}
	switch {
	case outcome.Detail == "already_processed",
		outcome.Detail == "superseded",
		outcome.Detail == "ignored",
		strings.HasPrefix(outcome.Detail, "skipped:"):
		return true
	}
	return false
}

// ListRuns 查询对账批次（管理端）
func (s *ReconciliationService) ListRuns(filter repository.ReconciliationRunListFilter) ([]models.ReconciliationRun, int64, error) {
	return s.repo.List(filter)
}
