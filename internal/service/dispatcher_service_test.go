package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/billing"
	"github.com/eonpro/eonpro-sub008/internal/config"
	"github.com/eonpro/eonpro-sub008/internal/constants"
	"github.com/eonpro/eonpro-sub008/internal/models"
	"github.com/eonpro/eonpro-sub008/internal/repository"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func TestDispatchPaymentAttributesCommissionOnce(t *testing.T) {
	env := setupDispatchTest(t)

	profile := createDispatchTestProfile(t, env.db, "REF001")
	patient := createDispatchTestPatient(t, env.db, "patient-a@example.com", profile.ID)
	createDispatchTestLink(t, env.db, "cus_disp_a", patient.ID, patient.ClinicID)

	event := paymentTestEvent("evt_pay_1", "pi_disp_1", "cus_disp_a", 12000)
	outcome := env.dispatcher.Dispatch(context.Background(), event)
	if !outcome.Applied {
		t.Fatalf("expected applied outcome, got %+v", outcome)
	}

	var commissions []models.CommissionEvent
	if err := env.db.Find(&commissions).Error; err != nil {
		t.Fatalf("load commissions failed: %v", err)
	}
	if len(commissions) != 1 {
		t.Fatalf("expected 1 commission event, got %d", len(commissions))
	}
	// 首单按首单比例 20% 计提
	if commissions[0].Amount.String() != "24.00" {
		t.Fatalf("expected commission amount 24.00, got %s", commissions[0].Amount.String())
	}
	if !commissions[0].IsFirstPayment {
		t.Fatalf("expected first payment commission")
	}

	reloaded, err := env.patientRepo.GetByID(patient.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reload patient failed: %v", err)
	}
	if reloaded.FirstPaidAt == nil {
		t.Fatalf("expected first_paid_at stamped")
	}

	// 幂等重放：不再产生副作用
	replay := env.dispatcher.Dispatch(context.Background(), event)
	if replay.Applied || replay.Detail != "already_processed" {
		t.Fatalf("expected already_processed on replay, got %+v", replay)
	}
	if err := env.db.Find(&commissions).Error; err != nil {
		t.Fatalf("reload commissions failed: %v", err)
	}
	if len(commissions) != 1 {
		t.Fatalf("expected commission count unchanged after replay, got %d", len(commissions))
	}
}

func TestDispatchPaymentSupersededByProcessedCharge(t *testing.T) {
	env := setupDispatchTest(t)

	profile := createDispatchTestProfile(t, env.db, "REF002")
	patient := createDispatchTestPatient(t, env.db, "patient-b@example.com", profile.ID)
	createDispatchTestLink(t, env.db, "cus_disp_b", patient.ID, patient.ClinicID)

	first := paymentTestEvent("evt_sup_1", "pi_sup_1", "cus_disp_b", 9900)
	second := paymentTestEvent("evt_sup_2", "pi_sup_1", "cus_disp_b", 9900)

	if outcome := env.dispatcher.Dispatch(context.Background(), first); !outcome.Applied {
		t.Fatalf("expected first representation applied, got %+v", outcome)
	}
	outcome := env.dispatcher.Dispatch(context.Background(), second)
	if outcome.Applied || outcome.Detail != "superseded" {
		t.Fatalf("expected superseded, got %+v", outcome)
	}

	var count int64
	if err := env.db.Model(&models.CommissionEvent{}).Count(&count).Error; err != nil {
		t.Fatalf("count commissions failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected single commission across representations, got %d", count)
	}
}

func TestDispatchPaymentUnresolvedCustomerIsTerminalSkip(t *testing.T) {
	env := setupDispatchTest(t)

	event := paymentTestEvent("evt_unres_1", "pi_unres_1", "cus_unknown", 5000)
	outcome := env.dispatcher.Dispatch(context.Background(), event)
	if outcome.Applied {
		t.Fatalf("expected skip outcome, got %+v", outcome)
	}
	if outcome.Detail != "skipped: unresolved customer" {
		t.Fatalf("unexpected detail: %s", outcome.Detail)
	}

	record, err := env.eventRepo.GetByExternalID("evt_unres_1")
	if err != nil || record == nil {
		t.Fatalf("load event record failed: %v", err)
	}
	if !record.Processed {
		t.Fatalf("expected unresolved event marked processed")
	}

	var dlqCount int64
	if err := env.db.Model(&models.DeadLetterEvent{}).Count(&dlqCount).Error; err != nil {
		t.Fatalf("count dead letters failed: %v", err)
	}
	if dlqCount != 0 {
		t.Fatalf("unresolved customer must not dead-letter, got %d entries", dlqCount)
	}
}

func TestDispatchRefundReversesCommissionToNetZero(t *testing.T) {
	env := setupDispatchTest(t)

	profile := createDispatchTestProfile(t, env.db, "REF003")
	patient := createDispatchTestPatient(t, env.db, "patient-c@example.com", profile.ID)
	createDispatchTestLink(t, env.db, "cus_disp_c", patient.ID, patient.ClinicID)

	payment := paymentTestEvent("evt_rev_pay", "pi_rev_1", "cus_disp_c", 10000)
	if outcome := env.dispatcher.Dispatch(context.Background(), payment); !outcome.Applied {
		t.Fatalf("expected payment applied, got %+v", outcome)
	}

	refund := &billing.InboundEvent{
		EventID:    "evt_rev_ref",
		EventType:  constants.BillingEventChargeRefunded,
		Kind:       constants.EventKindRefund,
		OccurredAt: time.Now().UTC(),
		Raw:        map[string]interface{}{"id": "evt_rev_ref"},
		Refund: &billing.RefundPayload{
			ObjectID:            "ch_rev_1",
			ChargeID:            "pi_rev_1",
			CustomerRef:         "cus_disp_c",
			AmountRefundedMinor: 10000,
			Currency:            "usd",
		},
	}
	if outcome := env.dispatcher.Dispatch(context.Background(), refund); !outcome.Applied {
		t.Fatalf("expected refund applied, got %+v", outcome)
	}

	var commission models.CommissionEvent
	if err := env.db.First(&commission).Error; err != nil {
		t.Fatalf("load commission failed: %v", err)
	}
	if commission.Status != constants.CommissionStatusReversed {
		t.Fatalf("expected reversed status, got %s", commission.Status)
	}

	ledger, err := env.commissionRepo.ListLedgerByEvent(commission.ID)
	if err != nil {
		t.Fatalf("load ledger failed: %v", err)
	}
	if len(ledger) != 2 {
		t.Fatalf("expected credit + reversal entries, got %d", len(ledger))
	}
	net := ledger[0].Amount.Decimal.Add(ledger[1].Amount.Decimal)
	if !net.IsZero() {
		t.Fatalf("expected net-zero ledger, got %s", net.String())
	}

	// 冲正重放同样幂等
	replay := env.dispatcher.Dispatch(context.Background(), refund)
	if replay.Applied || replay.Detail != "already_processed" {
		t.Fatalf("expected already_processed on refund replay, got %+v", replay)
	}
}

func TestDispatchRefundWithoutCommissionStillProcesses(t *testing.T) {
	env := setupDispatchTest(t)

	refund := &billing.InboundEvent{
		EventID:    "evt_orphan_ref",
		EventType:  constants.BillingEventChargeRefunded,
		Kind:       constants.EventKindRefund,
		OccurredAt: time.Now().UTC(),
		Raw:        map[string]interface{}{"id": "evt_orphan_ref"},
		Refund: &billing.RefundPayload{
			ObjectID:            "ch_orphan",
			ChargeID:            "pi_orphan",
			AmountRefundedMinor: 3000,
			Currency:            "usd",
		},
	}
	outcome := env.dispatcher.Dispatch(context.Background(), refund)
	if !outcome.Applied {
		t.Fatalf("expected orphan refund acknowledged as applied, got %+v", outcome)
	}

	record, err := env.eventRepo.GetByExternalID("evt_orphan_ref")
	if err != nil || record == nil || !record.Processed {
		t.Fatalf("expected orphan refund marked processed, got %+v err=%v", record, err)
	}
}

func TestDispatchFailureDeadLettersOnceAndNeverThrows(t *testing.T) {
	env := setupDispatchTest(t)

	profile := createDispatchTestProfile(t, env.db, "REF004")
	patient := createDispatchTestPatient(t, env.db, "patient-d@example.com", profile.ID)
	createDispatchTestLink(t, env.db, "cus_disp_d", patient.ID, patient.ClinicID)

	// 佣金服务缺失会在事务内 panic，处理路径必须收口为死信
	broken := NewDispatcherService(
		env.eventRepo, env.dlqRepo, env.resolver,
		nil, env.refillSvc, env.subscriptionSvc,
		NewNotificationService(nil), 5,
	)

	event := paymentTestEvent("evt_broken_1", "pi_broken_1", "cus_disp_d", 4000)
	outcome := broken.Dispatch(context.Background(), event)
	if outcome.Applied {
		t.Fatalf("expected failure outcome, got %+v", outcome)
	}

	var entries []models.DeadLetterEvent
	if err := env.db.Find(&entries).Error; err != nil {
		t.Fatalf("load dead letters failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one dead letter, got %d", len(entries))
	}
	if entries[0].ExternalEventID != "evt_broken_1" || !entries[0].RequiresReview {
		t.Fatalf("unexpected dead letter: %+v", entries[0])
	}

	// 重复失败只累加计数，不新增死信行
	_ = broken.Dispatch(context.Background(), event)
	if err := env.db.Find(&entries).Error; err != nil {
		t.Fatalf("reload dead letters failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected dead letter upsert, got %d rows", len(entries))
	}
	if entries[0].RetryCount != 1 {
		t.Fatalf("expected retry_count incremented to 1, got %d", entries[0].RetryCount)
	}
}

func TestDispatchSubscriptionProjectsLifecycle(t *testing.T) {
	env := setupDispatchTest(t)

	profile := createDispatchTestProfile(t, env.db, "REF005")
	patient := createDispatchTestPatient(t, env.db, "patient-e@example.com", profile.ID)
	createDispatchTestLink(t, env.db, "cus_disp_e", patient.ID, patient.ClinicID)

	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour).Unix()
	created := subscriptionTestEvent("evt_sub_1", constants.BillingEventSubscriptionCreate,
		constants.EventKindSubscriptionCreated, "cus_disp_e", "active", periodEnd)
	if outcome := env.dispatcher.Dispatch(context.Background(), created); !outcome.Applied {
		t.Fatalf("expected subscription create applied, got %+v", outcome)
	}

	row, err := env.subscriptionRepo.GetByExternalID("sub_disp_1")
	if err != nil || row == nil {
		t.Fatalf("load subscription failed: %v", err)
	}
	if row.Status != constants.SubscriptionStatusActive {
		t.Fatalf("expected active status, got %s", row.Status)
	}
	if row.BillingInterval != constants.BillingIntervalMonthly {
		t.Fatalf("expected monthly interval, got %s", row.BillingInterval)
	}
	wantNext := time.Unix(periodEnd, 0).UTC()
	if row.NextBillingAt == nil || !row.NextBillingAt.Equal(wantNext) {
		t.Fatalf("expected next billing at %v, got %v", wantNext, row.NextBillingAt)
	}

	deleted := subscriptionTestEvent("evt_sub_2", constants.BillingEventSubscriptionDelete,
		constants.EventKindSubscriptionDeleted, "cus_disp_e", "canceled", periodEnd)
	if outcome := env.dispatcher.Dispatch(context.Background(), deleted); !outcome.Applied {
		t.Fatalf("expected subscription delete applied, got %+v", outcome)
	}

	row, err = env.subscriptionRepo.GetByExternalID("sub_disp_1")
	if err != nil || row == nil {
		t.Fatalf("reload subscription failed: %v", err)
	}
	if row.Status != constants.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled status, got %s", row.Status)
	}
	if row.NextBillingAt != nil {
		t.Fatalf("expected next billing cleared on cancel, got %v", row.NextBillingAt)
	}
}

func TestDispatchSubscriptionStaleUpdateAfterDeleteStaysCanceled(t *testing.T) {
	env := setupDispatchTest(t)

	profile := createDispatchTestProfile(t, env.db, "REF006")
	patient := createDispatchTestPatient(t, env.db, "patient-f@example.com", profile.ID)
	createDispatchTestLink(t, env.db, "cus_disp_f", patient.ID, patient.ClinicID)

	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour).Unix()
	deleted := subscriptionTestEvent("evt_sub_3", constants.BillingEventSubscriptionDelete,
		constants.EventKindSubscriptionDeleted, "cus_disp_f", "canceled", periodEnd)
	if outcome := env.dispatcher.Dispatch(context.Background(), deleted); !outcome.Applied {
		t.Fatalf("expected subscription delete applied, got %+v", outcome)
	}

	// 上游乱序：删除之后才送达的旧更新事件
	stale := subscriptionTestEvent("evt_sub_4", constants.BillingEventSubscriptionUpdate,
		constants.EventKindSubscriptionUpdated, "cus_disp_f", "active", periodEnd)
	if outcome := env.dispatcher.Dispatch(context.Background(), stale); !outcome.Applied {
		t.Fatalf("expected stale update acknowledged, got %+v", outcome)
	}

	row, err := env.subscriptionRepo.GetByExternalID("sub_disp_1")
	if err != nil || row == nil {
		t.Fatalf("reload subscription failed: %v", err)
	}
	if row.Status != constants.SubscriptionStatusCanceled {
		t.Fatalf("expected subscription to stay canceled, got %s", row.Status)
	}
	if row.NextBillingAt != nil {
		t.Fatalf("expected next billing to stay cleared, got %v", row.NextBillingAt)
	}
}

func TestDispatchCanceledContextAbortsTransaction(t *testing.T) {
	env := setupDispatchTest(t)

	profile := createDispatchTestProfile(t, env.db, "REF007")
	patient := createDispatchTestPatient(t, env.db, "patient-g@example.com", profile.ID)
	createDispatchTestLink(t, env.db, "cus_disp_g", patient.ID, patient.ClinicID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	periodEnd := time.Now().UTC().Add(30 * 24 * time.Hour).Unix()
	event := subscriptionTestEvent("evt_sub_ctx_1", constants.BillingEventSubscriptionCreate,
		constants.EventKindSubscriptionCreated, "cus_disp_g", "active", periodEnd)
	outcome := env.dispatcher.Dispatch(ctx, event)
	if outcome.Applied {
		t.Fatalf("expected dispatch aborted on canceled context, got %+v", outcome)
	}
	if !strings.HasPrefix(outcome.Detail, "transaction_failed") {
		t.Fatalf("expected transaction_failed outcome, got %q", outcome.Detail)
	}

	row, err := env.subscriptionRepo.GetByExternalID("sub_disp_1")
	if err != nil {
		t.Fatalf("load subscription failed: %v", err)
	}
	if row != nil {
		t.Fatalf("expected no subscription projected, got %+v", row)
	}

	var letters []models.DeadLetterEvent
	if err := env.db.Find(&letters).Error; err != nil {
		t.Fatalf("reload dead letters failed: %v", err)
	}
	if len(letters) != 1 {
		t.Fatalf("expected dead letter recorded, got %d rows", len(letters))
	}
}

type dispatchTestEnv struct {
	db               *gorm.DB
	dispatcher       *DispatcherService
	eventRepo        repository.PaymentEventRepository
	dlqRepo          repository.DeadLetterRepository
	commissionRepo   repository.CommissionRepository
	patientRepo      repository.PatientRepository
	subscriptionRepo repository.SubscriptionRepository
	resolver         *ResolverService
	refillSvc        *RefillService
	subscriptionSvc  *SubscriptionService
}

func setupDispatchTest(t *testing.T) *dispatchTestEnv {
	t.Helper()

	db := openServiceTestDB(t, "dispatch")

	eventRepo := repository.NewPaymentEventRepository(db)
	commissionRepo := repository.NewCommissionRepository(db)
	patientRepo := repository.NewPatientRepository(db)
	refillRepo := repository.NewRefillRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)
	alertRepo := repository.NewFraudAlertRepository(db)
	dlqRepo := repository.NewDeadLetterRepository(db)
	ipIntelRepo := repository.NewIPIntelRepository(db)

	riskCfg := config.RiskConfig{
		DuplicateIPThreshold:   3,
		VelocityHourlyCeiling:  8,
		VelocityDailyCeiling:   40,
		VelocityAverageFactor:  3.0,
		RefundRateThresholdPct: 15,
		RefundRateMinSample:    10,
	}
	ipIntelSvc := NewIPIntelService(ipIntelRepo, nil, config.ReputationConfig{})
	fraudSvc := NewFraudService(commissionRepo, eventRepo, ipIntelSvc, riskCfg)
	commissionSvc := NewCommissionService(commissionRepo, patientRepo, alertRepo, fraudSvc)
	refillSvc := NewRefillService(refillRepo)
	resolver := NewResolverService(patientRepo, nil)
	subscriptionSvc := NewSubscriptionService(subscriptionRepo, resolver)
	notifySvc := NewNotificationService(nil)

	dispatcher := NewDispatcherService(
		eventRepo, dlqRepo, resolver,
		commissionSvc, refillSvc, subscriptionSvc,
		notifySvc, 5,
	)
	return &dispatchTestEnv{
		db:               db,
		dispatcher:       dispatcher,
		eventRepo:        eventRepo,
		dlqRepo:          dlqRepo,
		commissionRepo:   commissionRepo,
		patientRepo:      patientRepo,
		subscriptionRepo: subscriptionRepo,
		resolver:         resolver,
		refillSvc:        refillSvc,
		subscriptionSvc:  subscriptionSvc,
	}
}

func openServiceTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s_service_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.PaymentEvent{},
		&models.CustomerLink{},
		&models.Patient{},
		&models.AffiliateProfile{},
		&models.AffiliateTouch{},
		&models.CommissionEvent{},
		&models.CommissionLedger{},
		&models.FraudAlert{},
		&models.RefillQueueEntry{},
		&models.Subscription{},
		&models.DeadLetterEvent{},
		&models.IPIntel{},
		&models.ReconciliationRun{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return db
}

func createDispatchTestProfile(t *testing.T, db *gorm.DB, code string) models.AffiliateProfile {
	t.Helper()

	row := models.AffiliateProfile{
		ClinicID:       1,
		Code:           code,
		Name:           "tester",
		Email:          code + "-affiliate@example.com",
		CommissionRate: 20,
		RecurringRate:  10,
		Status:         constants.AffiliateStatusActive,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("create affiliate profile failed: %v", err)
	}
	return row
}

func createDispatchTestPatient(t *testing.T, db *gorm.DB, email string, referredBy uint) models.Patient {
	t.Helper()

	row := models.Patient{
		ClinicID:   1,
		Email:      email,
		Name:       "patient",
		ReferredBy: referredBy,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("create patient failed: %v", err)
	}
	return row
}

func createDispatchTestLink(t *testing.T, db *gorm.DB, customerRef string, patientID, clinicID uint) {
	t.Helper()

	row := models.CustomerLink{
		CustomerRef: customerRef,
		PatientID:   patientID,
		ClinicID:    clinicID,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("create customer link failed: %v", err)
	}
}

func paymentTestEvent(eventID, chargeID, customerRef string, amountMinor int64) *billing.InboundEvent {
	return &billing.InboundEvent{
		EventID:    eventID,
		EventType:  constants.BillingEventIntentSucceeded,
		Kind:       constants.EventKindPaymentSucceeded,
		OccurredAt: time.Now().UTC(),
		Raw:        map[string]interface{}{"id": eventID},
		Payment: &billing.PaymentPayload{
			ObjectID:    chargeID,
			ChargeID:    chargeID,
			CustomerRef: customerRef,
			AmountMinor: amountMinor,
			Currency:    "usd",
			ClientIP:    "203.0.113.10",
		},
	}
}

func subscriptionTestEvent(eventID, eventType, kind, customerRef, status string, periodEnd int64) *billing.InboundEvent {
	return &billing.InboundEvent{
		EventID:    eventID,
		EventType:  eventType,
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
		Raw:        map[string]interface{}{"id": eventID},
		Subscription: &billing.SubscriptionPayload{
			SubscriptionID:   "sub_disp_1",
			CustomerRef:      customerRef,
			Status:           status,
			IntervalUnit:     "month",
			IntervalCount:    1,
			AmountMinor:      4900,
			Currency:         "usd",
			CurrentPeriodEnd: periodEnd,
		},
	}
}
