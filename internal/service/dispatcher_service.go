package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/billing"
	"github.com/eonpro/eonpro-sub008/internal/constants"
	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/models"
	"github.com/eonpro/eonpro-sub008/internal/repository"

	"gorm.io/gorm"
)

// DispatchOutcome 事件分发结果
type DispatchOutcome struct {
	Applied bool   `json:"applied"`
	Detail  string `json:"detail"`
}

// DispatcherService 幂等事件分发器。
// 网关与对账扫描共用同一分发路径；external_event_id 幂等键与
// 各聚合的自然键唯一约束共同保证任意到达顺序下至多生效一次。
type DispatcherService struct {
	eventRepo       repository.PaymentEventRepository
	dlqRepo         repository.DeadLetterRepository
	resolver        *ResolverService
	commissionSvc   *CommissionService
	refillSvc       *RefillService
	subscriptionSvc *SubscriptionService
	notifySvc       *NotificationService
	processTimeout  time.Duration
}

// NewDispatcherService 创建事件分发器
func NewDispatcherService(
	eventRepo repository.PaymentEventRepository,
	dlqRepo repository.DeadLetterRepository,
	resolver *ResolverService,
	commissionSvc *CommissionService,
	refillSvc *RefillService,
	subscriptionSvc *SubscriptionService,
	notifySvc *NotificationService,
	processTimeoutSeconds int,
) *DispatcherService {
	timeout := 20 * time.Second
	if processTimeoutSeconds > 0 {
		timeout = time.Duration(processTimeoutSeconds) * time.Second
	}
	return &DispatcherService{
		eventRepo:       eventRepo,
		dlqRepo:         dlqRepo,
		resolver:        resolver,
		commissionSvc:   commissionSvc,
		refillSvc:       refillSvc,
		subscriptionSvc: subscriptionSvc,
		notifySvc:       notifySvc,
		processTimeout:  timeout,
	}
}

// Dispatch 分发一条已解析的上游事件。
// 任何下游异常都在这里收口成死信，绝不向网关抛错。
func (s *DispatcherService) Dispatch(ctx context.Context, event *billing.InboundEvent) (outcome *DispatchOutcome) {
	outcome = &DispatchOutcome{}
	if event == nil {
		outcome.Detail = "empty_event"
		return outcome
	}

	defer func() {
		if r := recover(); r != nil {
			// 兜底：即便死信写入自身出错也只记日志，网关照常确认
			logger.Errorw("dispatch_panicked", "external_event_id", event.EventID, "panic", r)
			s.deadLetter(event, fmt.Sprintf("panic: %v", r))
			outcome = &DispatchOutcome{Detail: "panic"}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.processTimeout)
	defer cancel()

	record, err := s.recordEvent(event)
	if err != nil {
		s.deadLetter(event, err.Error())
		outcome.Detail = "record_failed: " + err.Error()
		return outcome
	}
	if record.Processed {
		// 幂等重放：不再触发任何副作用
		outcome.Detail = "already_processed"
		return outcome
	}

	switch event.Kind {
	case constants.EventKindPaymentSucceeded:
		return s.dispatchPayment(ctx, event, record)
	case constants.EventKindRefund, constants.EventKindDispute:
		return s.dispatchReversal(ctx, event, record)
	case constants.EventKindSubscriptionCreated,
		constants.EventKindSubscriptionUpdated,
		constants.EventKindSubscriptionDeleted:
		return s.dispatchSubscription(ctx, event, record)
	default:
		if err := s.eventRepo.MarkProcessed(record.ID, time.Now().UTC()); err != nil {
			s.deadLetter(event, err.Error())
			outcome.Detail = "mark_processed_failed"
			return outcome
		}
		outcome.Detail = "ignored"
		return outcome
	}
}

// recordEvent 幂等落库事件行；重复投递时返回既有记录。
func (s *DispatcherService) recordEvent(event *billing.InboundEvent) (*models.PaymentEvent, error) {
	now := time.Now().UTC()
	record := &models.PaymentEvent{
		ExternalEventID: event.EventID,
		EventType:       event.EventType,
		Kind:            event.Kind,
		OccurredAt:      event.OccurredAt,
		RawPayload:      models.JSON(event.Raw),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	switch {
	case event.Payment != nil:
		record.SourceObjectID = event.Payment.ObjectID
		record.ChargeID = event.Payment.ChargeID
		record.CustomerRef = event.Payment.CustomerRef
		record.Currency = event.Payment.Currency
		record.Amount = models.NewMoneyFromMinorUnits(event.Payment.AmountMinor, billing.MinorUnitScale(event.Payment.Currency))
	case event.Refund != nil:
		record.SourceObjectID = event.Refund.ObjectID
		record.ChargeID = event.Refund.ChargeID
		record.CustomerRef = event.Refund.CustomerRef
		record.Currency = event.Refund.Currency
		record.Amount = models.NewMoneyFromMinorUnits(event.Refund.AmountRefundedMinor, billing.MinorUnitScale(event.Refund.Currency))
	case event.Subscription != nil:
		record.SourceObjectID = event.Subscription.SubscriptionID
		record.CustomerRef = event.Subscription.CustomerRef
		record.Currency = event.Subscription.Currency
	}

	inserted, err := s.eventRepo.InsertIfNew(record)
	if err != nil {
		return nil, err
	}
	if inserted {
		return record, nil
	}
	existing, err := s.eventRepo.GetByExternalID(event.EventID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("payment event vanished after conflict: %s", event.EventID)
	}
	return existing, nil
}

func (s *DispatcherService) dispatchPayment(ctx context.Context, event *billing.InboundEvent, record *models.PaymentEvent) *DispatchOutcome {
	outcome := &DispatchOutcome{}
	payment := event.Payment
	if payment == nil {
		outcome.Detail = "missing_payment_payload"
		return outcome
	}

	// 同一笔交易的另一种对象表示已生效时，本条直接作废
	superseded, err := s.eventRepo.HasProcessedByCharge(payment.ChargeID, record.ID)
	if err != nil {
		s.deadLetter(event, err.Error())
		outcome.Detail = "supersession_check_failed"
		return outcome
	}
	if superseded {
		if err := s.eventRepo.MarkProcessed(record.ID, time.Now().UTC()); err != nil {
			s.deadLetter(event, err.Error())
			outcome.Detail = "mark_processed_failed"
			return outcome
		}
		outcome.Detail = "superseded"
		return outcome
	}

	patient, err := s.resolver.Resolve(ctx, payment.CustomerRef, payment.ClinicID)
	if err != nil {
		if errors.Is(err, ErrCustomerUnresolved) {
			// 预期稳态：不产生死信，不告警
			if err := s.eventRepo.MarkProcessed(record.ID, time.Now().UTC()); err != nil {
				s.deadLetter(event, err.Error())
				outcome.Detail = "mark_processed_failed"
				return outcome
			}
			logger.Infow("dispatch_skipped_unresolved_customer",
				"external_event_id", event.EventID,
				"customer_ref", payment.CustomerRef)
			outcome.Detail = "skipped: unresolved customer"
			return outcome
		}
		s.deadLetter(event, err.Error())
		outcome.Detail = "resolve_failed"
		return outcome
	}

	amount := models.NewMoneyFromMinorUnits(payment.AmountMinor, billing.MinorUnitScale(payment.Currency))
	var attribution *AttributionOutcome
	txErr := s.eventRepo.Transaction(ctx, func(tx *gorm.DB) error {
		commissionSvc := s.commissionSvc.WithTx(tx)
		refillSvc := s.refillSvc.WithTx(tx)

		var err error
		attribution, err = commissionSvc.Attribute(ctx, AttributionInput{
			SourceEventID:  event.EventID,
			SourceObjectID: payment.ChargeID,
			Patient:        *patient,
			Amount:         amount,
			CustomerRef:    payment.CustomerRef,
			ClientIP:       payment.ClientIP,
			OccurredAt:     event.OccurredAt,
		})
		if err != nil {
			return err
		}
		if _, err := refillSvc.AutoMatch(patient.PatientID, patient.ClinicID, event.EventID, payment.InvoiceRef, amount); err != nil {
			return err
		}
		return s.eventRepo.WithTx(tx).MarkProcessed(record.ID, time.Now().UTC())
	})
	if txErr != nil {
		s.deadLetter(event, txErr.Error())
		outcome.Detail = "transaction_failed: " + txErr.Error()
		return outcome
	}

	if attribution != nil && attribution.SkipReason == "fraud_rejected" {
		s.notifySvc.AlertFraudCritical(attribution.AffiliateProfileID, event.EventID, attribution.RiskScore)
	}
	outcome.Applied = true
	if attribution != nil && attribution.SkipReason != "" {
		outcome.Detail = "applied: " + attribution.SkipReason
	} else {
		outcome.Detail = "applied"
	}
	return outcome
}

func (s *DispatcherService) dispatchReversal(ctx context.Context, event *billing.InboundEvent, record *models.PaymentEvent) *DispatchOutcome {
	outcome := &DispatchOutcome{}
	refund := event.Refund
	if refund == nil {
		outcome.Detail = "missing_refund_payload"
		return outcome
	}

	refundAmount := models.NewMoneyFromMinorUnits(refund.AmountRefundedMinor, billing.MinorUnitScale(refund.Currency))
	txErr := s.eventRepo.Transaction(ctx, func(tx *gorm.DB) error {
		commissionSvc := s.commissionSvc.WithTx(tx)
		if _, err := commissionSvc.Reverse(ctx, refund.ChargeID, refundAmount); err != nil {
			if errors.Is(err, ErrCommissionNotFound) {
				// 原支付未产生过佣金，无可冲正
				logger.Infow("reversal_skipped_no_commission",
					"external_event_id", event.EventID,
					"charge_id", refund.ChargeID)
			} else {
				return err
			}
		}
		return s.eventRepo.WithTx(tx).MarkProcessed(record.ID, time.Now().UTC())
	})
	if txErr != nil {
		s.deadLetter(event, txErr.Error())
		outcome.Detail = "transaction_failed: " + txErr.Error()
		return outcome
	}
	outcome.Applied = true
	outcome.Detail = "applied"
	return outcome
}

func (s *DispatcherService) dispatchSubscription(ctx context.Context, event *billing.InboundEvent, record *models.PaymentEvent) *DispatchOutcome {
	outcome := &DispatchOutcome{}
	txErr := s.eventRepo.Transaction(ctx, func(tx *gorm.DB) error {
		subscriptionSvc := s.subscriptionSvc.WithTx(tx)
		if _, err := subscriptionSvc.Sync(ctx, event.Kind, event.Subscription); err != nil {
			return err
		}
		return s.eventRepo.WithTx(tx).MarkProcessed(record.ID, time.Now().UTC())
	})
	if txErr != nil {
		s.deadLetter(event, txErr.Error())
		outcome.Detail = "transaction_failed: " + txErr.Error()
		return outcome
	}
	outcome.Applied = true
	outcome.Detail = "applied"
	return outcome
}

// deadLetter 失败收口：死信落库并旁路告警。死信是失败尝试的唯一记录。
func (s *DispatcherService) deadLetter(event *billing.InboundEvent, reason string) {
	entry := &models.DeadLetterEvent{
		ExternalEventID: event.EventID,
		EventType:       event.EventType,
		FailureReason:   reason,
		RawPayload:      models.JSON(event.Raw),
		RequiresReview:  true,
	}
	if err := s.dlqRepo.Upsert(entry); err != nil {
		logger.Errorw("dead_letter_write_failed",
			"external_event_id", event.EventID,
			"reason", reason,
			"error", err)
		return
	}
	logger.Warnw("event_dead_lettered",
		"external_event_id", event.EventID,
		"event_type", event.EventType,
		"reason", reason)
	s.notifySvc.AlertDeadLetter(event.EventID, reason)
}
