package constants

// 事件分类（网关在边界处解析出的封闭标签联合）
const (
	EventKindPaymentSucceeded    = "payment_succeeded"
	EventKindRefund              = "refund"
	EventKindDispute             = "dispute"
	EventKindSubscriptionCreated = "subscription_created"
	EventKindSubscriptionUpdated = "subscription_updated"
	EventKindSubscriptionDeleted = "subscription_deleted"
	EventKindIgnored             = "ignored"
)

// 计费处理方上报的原始事件类型
const (
	BillingEventIntentSucceeded    = "payment_intent.succeeded"
	BillingEventChargeSucceeded    = "charge.succeeded"
	BillingEventCheckoutCompleted  = "checkout.session.completed"
	BillingEventChargeRefunded     = "charge.refunded"
	BillingEventDisputeCreated     = "charge.dispute.created"
	BillingEventSubscriptionCreate = "customer.subscription.created"
	BillingEventSubscriptionUpdate = "customer.subscription.updated"
	BillingEventSubscriptionDelete = "customer.subscription.deleted"
)

// 佣金状态
const (
	CommissionStatusPending  = "pending"
	CommissionStatusApproved = "approved"
	CommissionStatusReversed = "reversed"
)

// 佣金账务流水类型
const (
	CommissionLedgerTypeCredit   = "credit"
	CommissionLedgerTypeReversal = "reversal"
)

// 欺诈告警类型
const (
	FraudAlertSelfReferral      = "self_referral"
	FraudAlertDuplicateIP       = "duplicate_ip"
	FraudAlertVelocitySpike     = "velocity_spike"
	FraudAlertSuspiciousPattern = "suspicious_pattern"
	FraudAlertRefundAbuse       = "refund_abuse"
)

// 欺诈告警严重级别
const (
	FraudSeverityLow      = "low"
	FraudSeverityMedium   = "medium"
	FraudSeverityHigh     = "high"
	FraudSeverityCritical = "critical"
)

// 欺诈告警状态
const (
	FraudAlertStatusOpen     = "open"
	FraudAlertStatusResolved = "resolved"
)

// 风控裁决建议
const (
	RiskRecommendationApprove = "approve"
	RiskRecommendationReview  = "review"
	RiskRecommendationReject  = "reject"
)

// 续方队列状态
const (
	RefillStatusScheduled       = "scheduled"
	RefillStatusPendingPayment  = "pending_payment"
	RefillStatusPaymentVerified = "payment_verified"
	RefillStatusApproved        = "approved"
	RefillStatusPrescribed      = "prescribed"
)

// 订阅状态
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusPaused   = "paused"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusExpired  = "expired"
)

// 订阅计费周期
const (
	BillingIntervalMonthly    = "monthly"
	BillingIntervalQuarterly  = "quarterly"
	BillingIntervalSemiannual = "semiannual"
	BillingIntervalAnnual     = "annual"
)

// 推广人状态
const (
	AffiliateStatusActive   = "active"
	AffiliateStatusDisabled = "disabled"
)

// 对账批次状态
const (
	ReconciliationRunStatusRunning   = "running"
	ReconciliationRunStatusCompleted = "completed"
	ReconciliationRunStatusFailed    = "failed"
)

// 队列与任务
const (
	QueueDefault = "default"

	TaskOpsAlert          = "ops:alert"
	TaskDeadLetterRetry   = "billing:dead_letter_retry"
	TaskReconciliationRun = "billing:reconciliation_run"
)

// IP 情报来源
const (
	IPIntelProviderAPI       = "api"
	IPIntelProviderHeuristic = "heuristic"
)
