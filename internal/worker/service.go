package worker

import (
	"context"
	"errors"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/config"
	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/queue"
	"github.com/eonpro/eonpro-sub008/internal/service"

	"github.com/hibiken/asynq"
)

// Service 异步队列服务
type Service struct {
	name      string
	server    *asynq.Server
	mux       *asynq.ServeMux
	consumer  *Consumer
	reconcile config.ReconcileConfig
}

// NewService 创建异步队列服务
func NewService(cfg *config.Config, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Queue.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(&cfg.Queue)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)
	return &Service{
		name:      "worker",
		server:    server,
		mux:       mux,
		consumer:  consumer,
		reconcile: cfg.Reconcile,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.reconcile.Enabled && s.reconcile.IntervalMinutes > 0 {
		go s.runReconcileSweepLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runReconcileSweepLoop 周期性兜底扫描。
// 手动触发与周期扫描共用同一 Run 入口，幂等键保证重复扫描无副作用。
func (s *Service) runReconcileSweepLoop(ctx context.Context) {
	if s == nil || s.consumer == nil || s.consumer.ReconciliationService == nil {
		return
	}
	runOnce := func() {
		run, err := s.consumer.ReconciliationService.Run(ctx, s.reconcile.WindowHours)
		if err != nil {
			if errors.Is(err, service.ErrReconcileDisabled) {
				return
			}
			logger.Warnw("worker_reconcile_sweep_failed", "error", err)
			return
		}
		logger.Infow("worker_reconcile_sweep_done",
			"run_id", run.ID,
			"missing", run.MissingCount,
			"replayed", run.ReplayedCount,
		)
	}

	ticker := time.NewTicker(time.Duration(s.reconcile.IntervalMinutes) * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
