package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/config"
	"github.com/eonpro/eonpro-sub008/internal/constants"
	"github.com/eonpro/eonpro-sub008/internal/models"
	"github.com/eonpro/eonpro-sub008/internal/repository"
	"gorm.io/gorm"
)

func TestFraudScoreCleanAttributionApproves(t *testing.T) {
	svc, db := setupFraudServiceTest(t)

	profile := createDispatchTestProfile(t, db, "FRD001")
	patient := createDispatchTestPatient(t, db, "clean-patient@example.com", profile.ID)

	result := svc.Score(context.Background(), FraudScoreInput{
		AffiliateProfileID: profile.ID,
		PatientID:          patient.ID,
		PatientEmail:       patient.Email,
		SourceEventID:      "evt_clean_1",
	})
	if result.Recommendation != constants.RiskRecommendationApprove {
		t.Fatalf("expected approve, got %s (score %d)", result.Recommendation, result.RiskScore)
	}
	if result.RiskScore != 0 || len(result.Alerts) != 0 {
		t.Fatalf("expected no signals, got score=%d alerts=%d", result.RiskScore, len(result.Alerts))
	}
}

func TestFraudScoreSelfReferralEmailIsRejected(t *testing.T) {
	svc, db := setupFraudServiceTest(t)

	profile := createDispatchTestProfile(t, db, "FRD002")
	patient := createDispatchTestPatient(t, db, profile.Email, profile.ID)

	result := svc.Score(context.Background(), FraudScoreInput{
		AffiliateProfileID: profile.ID,
		PatientID:          patient.ID,
		PatientEmail:       patient.Email,
		SourceEventID:      "evt_self_1",
	})
	if result.Recommendation != constants.RiskRecommendationReject {
		t.Fatalf("expected reject, got %s (score %d)", result.Recommendation, result.RiskScore)
	}
	if len(result.Alerts) != 1 || result.Alerts[0].AlertType != constants.FraudAlertSelfReferral {
		t.Fatalf("expected single self_referral alert, got %+v", result.Alerts)
	}
	if result.Alerts[0].Severity != constants.FraudSeverityCritical {
		t.Fatalf("expected critical severity, got %s", result.Alerts[0].Severity)
	}
}

func TestFraudScoreTorExitIsRejected(t *testing.T) {
	svc, db := setupFraudServiceTest(t)

	profile := createDispatchTestProfile(t, db, "FRD003")
	patient := createDispatchTestPatient(t, db, "tor-patient@example.com", profile.ID)

	torIP := "198.51.100.7"
	now := time.Now().UTC()
	intelRepo := repository.NewIPIntelRepository(db)
	if err := intelRepo.Upsert(&models.IPIntel{
		IPHash:    HashIP(torIP),
		IsTor:     true,
		RiskScore: 95,
		Provider:  constants.IPIntelProviderAPI,
		ExpiresAt: now.Add(time.Hour),
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("seed ip intel failed: %v", err)
	}

	result := svc.Score(context.Background(), FraudScoreInput{
		AffiliateProfileID: profile.ID,
		PatientID:          patient.ID,
		PatientEmail:       patient.Email,
		SourceEventID:      "evt_tor_1",
		ClientIP:           torIP,
	})
	if result.Recommendation != constants.RiskRecommendationReject {
		t.Fatalf("expected reject for tor exit, got %s (score %d)", result.Recommendation, result.RiskScore)
	}
	found := false
	for _, alert := range result.Alerts {
		if alert.AlertType == constants.FraudAlertSuspiciousPattern &&
			alert.Severity == constants.FraudSeverityCritical {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected critical suspicious_pattern alert, got %+v", result.Alerts)
	}
}

func TestFraudScoreVelocitySpikeTriggersReview(t *testing.T) {
	svc, db := setupFraudServiceTest(t)

	profile := createDispatchTestProfile(t, db, "FRD004")
	patient := createDispatchTestPatient(t, db, "velocity-patient@example.com", profile.ID)

	now := time.Now().UTC()
	for i := 0; i < 8; i++ {
		other := createDispatchTestPatient(t, db, "velocity-convert@example.com", profile.ID)
		seedFraudTestCommission(t, db, profile.ID, other.ID,
			fmt.Sprintf("evt_seed_%d", i), now.Add(-time.Duration(i)*time.Minute))
	}

	result := svc.Score(context.Background(), FraudScoreInput{
		AffiliateProfileID: profile.ID,
		PatientID:          patient.ID,
		PatientEmail:       patient.Email,
		SourceEventID:      "evt_velocity_1",
	})
	if result.Recommendation != constants.RiskRecommendationReview {
		t.Fatalf("expected review, got %s (score %d)", result.Recommendation, result.RiskScore)
	}
	found := false
	for _, alert := range result.Alerts {
		if alert.AlertType == constants.FraudAlertVelocitySpike {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected velocity_spike alert, got %+v", result.Alerts)
	}
}

func TestFraudScoreCustomerVelocityFlagsBurst(t *testing.T) {
	svc, db := setupFraudServiceTest(t)

	profile := createDispatchTestProfile(t, db, "FRD006")
	patient := createDispatchTestPatient(t, db, "burst-patient@example.com", profile.ID)

	now := time.Now().UTC()
	for i := 0; i < 8; i++ {
		seedFraudTestPaymentEvent(t, db, fmt.Sprintf("evt_burst_seed_%d", i),
			"cus_burst_1", constants.EventKindPaymentSucceeded, now.Add(-time.Duration(i+2)*time.Hour))
	}

	result := svc.Score(context.Background(), FraudScoreInput{
		AffiliateProfileID: profile.ID,
		PatientID:          patient.ID,
		PatientEmail:       patient.Email,
		SourceEventID:      "evt_burst_1",
		CustomerRef:        "cus_burst_1",
	})
	if result.Recommendation != constants.RiskRecommendationReview {
		t.Fatalf("expected review, got %s (score %d)", result.Recommendation, result.RiskScore)
	}
	found := false
	for _, alert := range result.Alerts {
		if alert.AlertType == constants.FraudAlertVelocitySpike && alert.Severity == constants.FraudSeverityHigh {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected high velocity_spike alert, got %+v", result.Alerts)
	}

	// 另一个客户不受影响
	calm := svc.Score(context.Background(), FraudScoreInput{
		AffiliateProfileID: profile.ID,
		PatientID:          patient.ID,
		PatientEmail:       patient.Email,
		SourceEventID:      "evt_burst_2",
		CustomerRef:        "cus_calm_1",
	})
	if calm.Recommendation != constants.RiskRecommendationApprove {
		t.Fatalf("expected approve for quiet customer, got %s", calm.Recommendation)
	}
}

func TestFraudScoreIsDeterministicForSameInput(t *testing.T) {
	svc, db := setupFraudServiceTest(t)

	profile := createDispatchTestProfile(t, db, "FRD005")
	patient := createDispatchTestPatient(t, db, "stable-patient@example.com", profile.ID)

	input := FraudScoreInput{
		AffiliateProfileID: profile.ID,
		PatientID:          patient.ID,
		PatientEmail:       patient.Email,
		SourceEventID:      "evt_stable_1",
	}
	first := svc.Score(context.Background(), input)
	second := svc.Score(context.Background(), input)
	if first.RiskScore != second.RiskScore || first.Recommendation != second.Recommendation {
		t.Fatalf("expected stable verdict, got (%d,%s) then (%d,%s)",
			first.RiskScore, first.Recommendation, second.RiskScore, second.Recommendation)
	}
}

func setupFraudServiceTest(t *testing.T) (*FraudService, *gorm.DB) {
	t.Helper()

	db := openServiceTestDB(t, "fraud")
	commissionRepo := repository.NewCommissionRepository(db)
	eventRepo := repository.NewPaymentEventRepository(db)
	ipIntelSvc := NewIPIntelService(repository.NewIPIntelRepository(db), nil, config.ReputationConfig{})
	svc := NewFraudService(commissionRepo, eventRepo, ipIntelSvc, config.RiskConfig{
		DuplicateIPThreshold:   3,
		VelocityHourlyCeiling:  8,
		VelocityDailyCeiling:   40,
		VelocityAverageFactor:  3.0,
		RefundRateThresholdPct: 15,
		RefundRateMinSample:    10,
	})
	return svc, db
}

func seedFraudTestPaymentEvent(t *testing.T, db *gorm.DB, eventID, customerRef, kind string, occurredAt time.Time) {
	t.Helper()

	row := models.PaymentEvent{
		ExternalEventID: eventID,
		EventType:       constants.BillingEventIntentSucceeded,
		Kind:            kind,
		CustomerRef:     customerRef,
		OccurredAt:      occurredAt,
		Processed:       true,
		CreatedAt:       occurredAt,
		UpdatedAt:       occurredAt,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed payment event failed: %v", err)
	}
}

func seedFraudTestCommission(t *testing.T, db *gorm.DB, profileID, patientID uint, sourceEventID string, createdAt time.Time) {
	t.Helper()

	row := models.CommissionEvent{
		AffiliateProfileID: profileID,
		PatientID:          patientID,
		ClinicID:           1,
		SourceEventID:      sourceEventID,
		SourceObjectID:     "pi_seed",
		Amount:             models.NewMoneyFromMinorUnits(1000, 2),
		Status:             constants.CommissionStatusApproved,
		CreatedAt:          createdAt,
		UpdatedAt:          createdAt,
	}
	if err := db.Create(&row).Error; err != nil {
		t.Fatalf("seed commission failed: %v", err)
	}
}
