package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/constants"
	"github.com/eonpro/eonpro-sub008/internal/models"
)

func TestDeadLetterRetryReplaysAndResolves(t *testing.T) {
	env := setupDispatchTest(t)
	svc := NewDeadLetterService(env.dlqRepo, env.dispatcher)

	profile := createDispatchTestProfile(t, env.db, "DLQ001")
	patient := createDispatchTestPatient(t, env.db, "dlq-patient@example.com", profile.ID)
	createDispatchTestLink(t, env.db, "cus_dlq_a", patient.ID, patient.ClinicID)

	entry := seedDeadLetterEntry(t, env, "evt_dlq_1", "pi_dlq_1", "cus_dlq_a")

	outcome, err := svc.Retry(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !outcome.Applied {
		t.Fatalf("expected replay applied, got %+v", outcome)
	}

	reloaded, err := svc.Get(entry.ID)
	if err != nil {
		t.Fatalf("reload entry failed: %v", err)
	}
	if !reloaded.Resolved || reloaded.ResolvedAt == nil {
		t.Fatalf("expected entry resolved, got %+v", reloaded)
	}

	var commissions int64
	if err := env.db.Model(&models.CommissionEvent{}).Count(&commissions).Error; err != nil {
		t.Fatalf("count commissions failed: %v", err)
	}
	if commissions != 1 {
		t.Fatalf("expected replay to attribute commission, got %d", commissions)
	}

	// 已恢复的条目重试是无副作用的成功
	again, err := svc.Retry(context.Background(), entry.ID)
	if err != nil || !again.Applied {
		t.Fatalf("expected resolved retry noop, got %+v err=%v", again, err)
	}
}

func TestDeadLetterRetryUnknownIDReturnsNotFound(t *testing.T) {
	env := setupDispatchTest(t)
	svc := NewDeadLetterService(env.dlqRepo, env.dispatcher)

	if _, err := svc.Retry(context.Background(), 424242); !errors.Is(err, ErrDeadLetterNotFound) {
		t.Fatalf("expected ErrDeadLetterNotFound, got %v", err)
	}
}

func TestDeadLetterRetryWithoutPayloadIsUnreplayable(t *testing.T) {
	env := setupDispatchTest(t)
	svc := NewDeadLetterService(env.dlqRepo, env.dispatcher)

	entry := &models.DeadLetterEvent{
		ExternalEventID: "evt_dlq_empty",
		EventType:       constants.BillingEventIntentSucceeded,
		FailureReason:   "boom",
	}
	if err := env.dlqRepo.Upsert(entry); err != nil {
		t.Fatalf("seed dead letter failed: %v", err)
	}

	if _, err := svc.Retry(context.Background(), entry.ID); !errors.Is(err, ErrDeadLetterUnreplayable) {
		t.Fatalf("expected ErrDeadLetterUnreplayable, got %v", err)
	}
}

// seedDeadLetterEntry 构造一条携带可重放原始报文的死信。
func seedDeadLetterEntry(t *testing.T, env *dispatchTestEnv, eventID, chargeID, customerRef string) *models.DeadLetterEvent {
	t.Helper()

	raw := map[string]interface{}{
		"id":      eventID,
		"type":    constants.BillingEventIntentSucceeded,
		"created": float64(time.Now().Unix()),
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":       chargeID,
				"customer": customerRef,
				"amount":   float64(8000),
				"currency": "usd",
			},
		},
	}
	entry := &models.DeadLetterEvent{
		ExternalEventID: eventID,
		EventType:       constants.BillingEventIntentSucceeded,
		FailureReason:   "downstream timeout",
		RawPayload:      models.JSON(raw),
		RequiresReview:  true,
	}
	if err := env.dlqRepo.Upsert(entry); err != nil {
		t.Fatalf("seed dead letter failed: %v", err)
	}
	return entry
}
