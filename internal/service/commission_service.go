package service

import (
	"context"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/constants"
	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/models"
	"github.com/eonpro/eonpro-sub008/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AttributionInput 佣金归因输入
type AttributionInput struct {
	SourceEventID  string
	SourceObjectID string
	Patient        PatientRef
	Amount         models.Money
	CustomerRef    string
	ClientIP       string
	OccurredAt     time.Time
}

// AttributionOutcome 佣金归因结果
type AttributionOutcome struct {
	Created            bool
	SkipReason         string
	Event              *models.CommissionEvent
	RiskScore          int
	AffiliateProfileID uint
}

// CommissionService 佣金归因服务
type CommissionService struct {
	repo        repository.CommissionRepository
	patientRepo repository.PatientRepository
	alertRepo   repository.FraudAlertRepository
	fraudSvc    *FraudService
}

// NewCommissionService 创建佣金归因服务
func NewCommissionService(
	repo repository.CommissionRepository,
	patientRepo repository.PatientRepository,
	alertRepo repository.FraudAlertRepository,
	fraudSvc *FraudService,
) *CommissionService {
	return &CommissionService{
		repo:        repo,
		patientRepo: patientRepo,
		alertRepo:   alertRepo,
		fraudSvc:    fraudSvc,
	}
}

// WithTx 绑定事务
func (s *CommissionService) WithTx(tx *gorm.DB) *CommissionService {
	if tx == nil {
		return s
	}
	return &CommissionService{
		repo:        s.repo.WithTx(tx),
		patientRepo: s.patientRepo.WithTx(tx),
		alertRepo:   s.alertRepo.WithTx(tx),
		fraudSvc:    s.fraudSvc,
	}
}

// Attribute 对一笔成功支付做佣金归因。
// (推广人, 来源事件) 的存储层唯一约束保证至多归因一次，
// 重复尝试是无副作用的成功而非错误。
func (s *CommissionService) Attribute(ctx context.Context, input AttributionInput) (*AttributionOutcome, error) {
	patient, err := s.patientRepo.GetByID(input.Patient.PatientID)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return &AttributionOutcome{SkipReason: "patient_missing"}, nil
	}

	profile, err := s.resolveAffiliate(patient)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return &AttributionOutcome{SkipReason: "no_referring_affiliate"}, nil
	}
	if profile.Status != constants.AffiliateStatusActive {
		return &AttributionOutcome{SkipReason: "affiliate_inactive"}, nil
	}

	attributed, err := s.repo.CountEventsByPatient(patient.ID, nil)
	if err != nil {
		return nil, err
	}
	isFirstPayment := attributed == 0 && patient.FirstPaidAt == nil

	rate := profile.RecurringRate
	if isFirstPayment {
		rate = profile.CommissionRate
	}
	if rate <= 0 {
		return &AttributionOutcome{SkipReason: "zero_commission_rate"}, nil
	}
	amount := models.NewMoneyFromDecimal(
		input.Amount.Decimal.Mul(decimal.NewFromInt(int64(rate))).Div(decimal.NewFromInt(100)),
	)

	score := s.fraudSvc.Score(ctx, FraudScoreInput{
		AffiliateProfileID: profile.ID,
		PatientID:          patient.ID,
		PatientEmail:       patient.Email,
		SourceEventID:      input.SourceEventID,
		CustomerRef:        input.CustomerRef,
		ClientIP:           input.ClientIP,
	})

	outcome := &AttributionOutcome{RiskScore: score.RiskScore, AffiliateProfileID: profile.ID}
	if score.Recommendation == constants.RiskRecommendationReject {
		// 拒绝是业务裁决而非错误：只落告警，不产生佣金记录
		if err := s.persistAlerts(score.Alerts, 0); err != nil {
			return nil, err
		}
		outcome.SkipReason = "fraud_rejected"
		logger.Warnw("commission_attribution_rejected",
			"affiliate_profile_id", profile.ID,
			"source_event_id", input.SourceEventID,
			"risk_score", score.RiskScore)
		return outcome, nil
	}

	now := time.Now().UTC()
	status := constants.CommissionStatusApproved
	fraudHold := false
	if score.Recommendation == constants.RiskRecommendationReview {
		status = constants.CommissionStatusPending
		fraudHold = true
	}

	event := &models.CommissionEvent{
		AffiliateProfileID: profile.ID,
		PatientID:          patient.ID,
		ClinicID:           patient.ClinicID,
		SourceEventID:      input.SourceEventID,
		SourceObjectID:     input.SourceObjectID,
		Amount:             amount,
		IsFirstPayment:     isFirstPayment,
		Status:             status,
		RiskScore:          score.RiskScore,
		FraudHold:          fraudHold,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	inserted, err := s.repo.InsertEventIfNew(event)
	if err != nil {
		return nil, err
	}
	if !inserted {
		outcome.SkipReason = "already_attributed"
		return outcome, nil
	}

	if err := s.repo.CreateLedger(&models.CommissionLedger{
		CommissionEventID: event.ID,
		EntryType:         constants.CommissionLedgerTypeCredit,
		Amount:            amount,
		CreatedAt:         now,
	}); err != nil {
		return nil, err
	}
	if err := s.persistAlerts(score.Alerts, event.ID); err != nil {
		return nil, err
	}
	if isFirstPayment {
		if err := s.patientRepo.MarkFirstPaid(patient.ID, input.OccurredAt); err != nil {
			return nil, err
		}
	}

	outcome.Created = true
	outcome.Event = event
	logger.Infow("commission_attributed",
		"affiliate_profile_id", profile.ID,
		"source_event_id", input.SourceEventID,
		"amount", amount.String(),
		"status", status,
		"fraud_hold", fraudHold,
		"first_payment", isFirstPayment)
	return outcome, nil
}

// Reverse 退款/争议冲正：原记录状态翻转为 reversed，
// 补记一条负数流水，金额取原额与退款额中的较小者，历史不删除。
func (s *CommissionService) Reverse(ctx context.Context, sourceObjectID string, refundAmount models.Money) (*models.CommissionEvent, error) {
	event, err := s.repo.GetEventBySourceObject(sourceObjectID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrCommissionNotFound
	}
	if event.Status == constants.CommissionStatusReversed {
		// 冲正重放是无副作用的成功
		return event, nil
	}

	reversal := event.Amount
	if refundAmount.Decimal.GreaterThan(decimal.Zero) && refundAmount.Decimal.LessThan(event.Amount.Decimal) {
		reversal = refundAmount
	}

	now := time.Now().UTC()
	if err := s.repo.MarkEventReversed(event.ID, now); err != nil {
		return nil, err
	}
	if err := s.repo.CreateLedger(&models.CommissionLedger{
		CommissionEventID: event.ID,
		EntryType:         constants.CommissionLedgerTypeReversal,
		Amount:            models.NewMoneyFromDecimal(reversal.Decimal.Neg()),
		CreatedAt:         now,
	}); err != nil {
		return nil, err
	}

	event.Status = constants.CommissionStatusReversed
	event.ReversedAt = &now
	logger.Infow("commission_reversed",
		"commission_event_id", event.ID,
		"source_object_id", sourceObjectID,
		"reversal_amount", reversal.String())
	return event, nil
}

// ListEvents 查询佣金记录列表（管理端）
func (s *CommissionService) ListEvents(filter repository.CommissionListFilter) ([]models.CommissionEvent, int64, error) {
	return s.repo.ListEvents(filter)
}

// ListLedger 查询佣金流水（管理端）
func (s *CommissionService) ListLedger(commissionEventID uint) ([]models.CommissionLedger, error) {
	return s.repo.ListLedgerByEvent(commissionEventID)
}

func (s *CommissionService) resolveAffiliate(patient *models.Patient) (*models.AffiliateProfile, error) {
	touch, err := s.repo.GetLatestTouchByPatient(patient.ID)
	if err != nil {
		return nil, err
	}
	profileID := patient.ReferredBy
	if touch != nil {
		profileID = touch.AffiliateProfileID
	}
	if profileID == 0 {
		return nil, nil
	}
	return s.repo.GetProfileByID(profileID)
}

func (s *CommissionService) persistAlerts(alerts []models.FraudAlert, commissionEventID uint) error {
	if len(alerts) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range alerts {
		alerts[i].CommissionEventID = commissionEventID
		alerts[i].CreatedAt = now
		alerts[i].UpdatedAt = now
	}
	return s.alertRepo.CreateBatch(alerts)
}
