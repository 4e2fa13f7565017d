package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/billing"
	"github.com/eonpro/eonpro-sub008/internal/config"
	"github.com/eonpro/eonpro-sub008/internal/constants"
	"github.com/eonpro/eonpro-sub008/internal/models"
	"github.com/eonpro/eonpro-sub008/internal/repository"
)

type fakeEventLister struct {
	events []*billing.InboundEvent
	err    error
}

func (f *fakeEventLister) ListSucceededEvents(_ context.Context, _ time.Time, _ int) ([]*billing.InboundEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func TestReconciliationReplaysMissingEventsAndConverges(t *testing.T) {
	env := setupDispatchTest(t)
	lister := &fakeEventLister{}

	profile := createDispatchTestProfile(t, env.db, "RCN001")
	for i := 0; i < 10; i++ {
		patient := createDispatchTestPatient(t, env.db, fmt.Sprintf("recon-%d@example.com", i), profile.ID)
		ref := fmt.Sprintf("cus_rcn_%d", i)
		createDispatchTestLink(t, env.db, ref, patient.ID, patient.ClinicID)
		lister.events = append(lister.events,
			paymentTestEvent(fmt.Sprintf("evt_rcn_%d", i), fmt.Sprintf("pi_rcn_%d", i), ref, 6000))
	}

	// 前 7 条已经走过在线通道
	for i := 0; i < 7; i++ {
		if outcome := env.dispatcher.Dispatch(context.Background(), lister.events[i]); !outcome.Applied {
			t.Fatalf("seed dispatch %d failed: %+v", i, outcome)
		}
	}

	svc := NewReconciliationService(
		repository.NewReconciliationRepository(env.db),
		env.eventRepo, env.dispatcher, lister,
		NewNotificationService(nil),
		config.ReconcileConfig{Enabled: true, WindowHours: 48, PageSize: 100},
	)

	run, err := svc.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("reconciliation run failed: %v", err)
	}
	if run.RunUID == "" {
		t.Fatal("expected run uid to be assigned")
	}
	if run.Status != constants.ReconciliationRunStatusCompleted {
		t.Fatalf("expected completed run, got %s", run.Status)
	}
	if run.TotalUpstream != 10 || run.MissingCount != 3 || run.ReplayedCount != 3 {
		t.Fatalf("unexpected counts: total=%d missing=%d replayed=%d",
			run.TotalUpstream, run.MissingCount, run.ReplayedCount)
	}

	var commissions int64
	if err := env.db.Model(&models.CommissionEvent{}).Count(&commissions).Error; err != nil {
		t.Fatalf("count commissions failed: %v", err)
	}
	if commissions != 10 {
		t.Fatalf("expected 10 commissions after sweep, got %d", commissions)
	}

	// 二次扫描应当收敛：没有缺失，也没有新副作用
	second, err := svc.Run(context.Background(), 0)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if second.MissingCount != 0 || second.ReplayedCount != 0 {
		t.Fatalf("expected converged run, got missing=%d replayed=%d",
			second.MissingCount, second.ReplayedCount)
	}
	if err := env.db.Model(&models.CommissionEvent{}).Count(&commissions).Error; err != nil {
		t.Fatalf("recount commissions failed: %v", err)
	}
	if commissions != 10 {
		t.Fatalf("expected commission count unchanged, got %d", commissions)
	}
}

func TestReconciliationDisabledReturnsError(t *testing.T) {
	env := setupDispatchTest(t)

	svc := NewReconciliationService(
		repository.NewReconciliationRepository(env.db),
		env.eventRepo, env.dispatcher, &fakeEventLister{},
		NewNotificationService(nil),
		config.ReconcileConfig{Enabled: false},
	)
	if _, err := svc.Run(context.Background(), 0); !errors.Is(err, ErrReconcileDisabled) {
		t.Fatalf("expected ErrReconcileDisabled, got %v", err)
	}
}

func TestReconciliationUpstreamFailureMarksRunFailed(t *testing.T) {
	env := setupDispatchTest(t)
	repo := repository.NewReconciliationRepository(env.db)

	svc := NewReconciliationService(
		repo, env.eventRepo, env.dispatcher,
		&fakeEventLister{err: errors.New("listing unavailable")},
		NewNotificationService(nil),
		config.ReconcileConfig{Enabled: true, WindowHours: 24},
	)
	if _, err := svc.Run(context.Background(), 0); err == nil {
		t.Fatalf("expected run error on upstream failure")
	}

	latest, err := repo.GetLatest()
	if err != nil || latest == nil {
		t.Fatalf("load latest run failed: %v", err)
	}
	if latest.Status != constants.ReconciliationRunStatusFailed {
		t.Fatalf("expected failed run status, got %s", latest.Status)
	}
	if latest.ErrorMessage == "" {
		t.Fatalf("expected error message recorded")
	}
}

func TestReconciliationTriggerSecret(t *testing.T) {
	svc := NewReconciliationService(nil, nil, nil, nil, nil,
		config.ReconcileConfig{Enabled: true, TriggerSecret: "sweep-secret"})

	if err := svc.VerifyTriggerSecret("sweep-secret"); err != nil {
		t.Fatalf("expected valid secret accepted, got %v", err)
	}
	if err := svc.VerifyTriggerSecret("wrong"); !errors.Is(err, ErrReconcileSecretInvalid) {
		t.Fatalf("expected ErrReconcileSecretInvalid, got %v", err)
	}

	empty := NewReconciliationService(nil, nil, nil, nil, nil,
		config.ReconcileConfig{Enabled: true})
	if err := empty.VerifyTriggerSecret(""); !errors.Is(err, ErrReconcileSecretInvalid) {
		t.Fatalf("expected unset secret to reject all triggers, got %v", err)
	}
}
