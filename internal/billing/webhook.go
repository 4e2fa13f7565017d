package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/constants"
)

// PaymentPayload 支付成功事件的类型化载荷。
type PaymentPayload struct {
	ObjectID    string
	ChargeID    string
	CustomerRef string
	AmountMinor int64
	Currency    string
	ClientIP    string
	ClinicID    uint
	InvoiceRef  string
}

// RefundPayload 退款/争议事件的类型化载荷。
type RefundPayload struct {
	ObjectID            string
	ChargeID            string
	CustomerRef         string
	AmountRefundedMinor int64
	Currency            string
}

// SubscriptionPayload 订阅生命周期事件的类型化载荷。
type SubscriptionPayload struct {
	SubscriptionID     string
	CustomerRef        string
	Status             string
	IntervalUnit       string
	IntervalCount      int
	AmountMinor        int64
	Currency           string
	CurrentPeriodStart int64
	CurrentPeriodEnd   int64
	CancelAtPeriodEnd  bool
	CanceledAt         int64
	ClinicID           uint
}

// InboundEvent 在网关边界一次性解析出的封闭事件联合。
// 下游只消费类型化载荷，不再触碰原始报文结构。
type InboundEvent struct {
	EventID      string
	EventType    string
	Kind         string
	OccurredAt   time.Time
	Raw          map[string]interface{}
	Payment      *PaymentPayload
	Refund       *RefundPayload
	Subscription *SubscriptionPayload
}

// ClassifyEventType 原始事件类型到内部事件分类的映射。
func ClassifyEventType(eventType string) string {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case constants.BillingEventIntentSucceeded,
		constants.BillingEventChargeSucceeded,
		constants.BillingEventCheckoutCompleted:
		return constants.EventKindPaymentSucceeded
	case constants.BillingEventChargeRefunded:
		return constants.EventKindRefund
	case constants.BillingEventDisputeCreated:
		return constants.EventKindDispute
	case constants.BillingEventSubscriptionCreate:
		return constants.EventKindSubscriptionCreated
	case constants.BillingEventSubscriptionUpdate:
		return constants.EventKindSubscriptionUpdated
	case constants.BillingEventSubscriptionDelete:
		return constants.EventKindSubscriptionDeleted
	default:
		return constants.EventKindIgnored
	}
}

// VerifyAndParseWebhook 校验签名并解析 webhook 报文。
// 签名不合法是唯一向上返回错误的路径。
func VerifyAndParseWebhook(cfg *Config, headers map[string]string, body []byte, now time.Time) (*InboundEvent, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, fmt.Errorf("%w: webhook_secret is required", ErrConfigInvalid)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: body is empty", ErrResponseInvalid)
	}
	if now.IsZero() {
		now = time.Now()
	}

	signatureHeader := getHeaderValue(headers, "Stripe-Signature")
	if strings.TrimSpace(signatureHeader) == "" {
		return nil, fmt.Errorf("%w: Stripe-Signature is required", ErrSignatureInvalid)
	}
	timestamp, signatures, err := parseSignatureHeader(signatureHeader)
	if err != nil {
		return nil, err
	}
	if cfg.WebhookToleranceSeconds > 0 {
		delta := math.Abs(float64(now.Unix() - timestamp))
		if delta > float64(cfg.WebhookToleranceSeconds) {
			return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrSignatureInvalid)
		}
	}

	expected := ComputeSignature(cfg.WebhookSecret, timestamp, body)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(strings.ToLower(sig)), []byte(expected)) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, fmt.Errorf("%w: verify failed", ErrSignatureInvalid)
	}

	eventRaw, err := decodeRawMap(body)
	if err != nil {
		return nil, err
	}
	return ParseEvent(eventRaw)
}

// ParseEvent 将上游事件信封解析为类型化事件。
// webhook 与对账拉取共用同一信封格式，共用同一解析。
func ParseEvent(eventRaw map[string]interface{}) (*InboundEvent, error) {
	eventID := strings.TrimSpace(readString(eventRaw, "id"))
	if eventID == "" {
		return nil, fmt.Errorf("%w: missing event id", ErrResponseInvalid)
	}
	eventType := strings.TrimSpace(readString(eventRaw, "type"))
	if eventType == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrResponseInvalid)
	}
	dataRaw := readMap(eventRaw, "data")
	if dataRaw == nil {
		return nil, fmt.Errorf("%w: missing data object", ErrResponseInvalid)
	}
	objectRaw := readMap(dataRaw, "object")
	if objectRaw == nil {
		return nil, fmt.Errorf("%w: missing event object", ErrResponseInvalid)
	}

	event := &InboundEvent{
		EventID:   eventID,
		EventType: eventType,
		Kind:      ClassifyEventType(eventType),
		Raw:       eventRaw,
	}
	if created := readInt64(eventRaw, "created"); created > 0 {
		event.OccurredAt = time.Unix(created, 0).UTC()
	} else {
		event.OccurredAt = time.Now().UTC()
	}

	switch event.Kind {
	case constants.EventKindPaymentSucceeded:
		event.Payment = parsePaymentPayload(objectRaw)
	case constants.EventKindRefund, constants.EventKindDispute:
		event.Refund = parseRefundPayload(objectRaw)
	case constants.EventKindSubscriptionCreated,
		constants.EventKindSubscriptionUpdated,
		constants.EventKindSubscriptionDeleted:
		event.Subscription = parseSubscriptionPayload(objectRaw)
	}
	return event, nil
}

func parsePaymentPayload(objectRaw map[string]interface{}) *PaymentPayload {
	metadata := readMap(objectRaw, "metadata")
	payload := &PaymentPayload{
		ObjectID:    strings.TrimSpace(readString(objectRaw, "id")),
		CustomerRef: readObjectID(objectRaw, "customer"),
		Currency:    strings.ToLower(strings.TrimSpace(readString(objectRaw, "currency"))),
		ClientIP:    strings.TrimSpace(readString(metadata, "client_ip")),
		ClinicID:    readUint(metadata, "clinic_id"),
		InvoiceRef:  readObjectID(objectRaw, "invoice"),
	}
	payload.ChargeID = chargeKey(objectRaw)

	// checkout.session 用 amount_total，charge/intent 用 amount_received 或 amount
	amountMinor := readInt64(objectRaw, "amount_total")
	if amountMinor <= 0 {
		amountMinor = readInt64(objectRaw, "amount_received")
	}
	if amountMinor <= 0 {
		amountMinor = readInt64(objectRaw, "amount")
	}
	payload.AmountMinor = amountMinor
	return payload
}

func parseRefundPayload(objectRaw map[string]interface{}) *RefundPayload {
	payload := &RefundPayload{
		ObjectID:    strings.TrimSpace(readString(objectRaw, "id")),
		CustomerRef: readObjectID(objectRaw, "customer"),
		Currency:    strings.ToLower(strings.TrimSpace(readString(objectRaw, "currency"))),
	}
	payload.ChargeID = chargeKey(objectRaw)

	// 争议对象用 charge 字段指向原交易
	if charge := readObjectID(objectRaw, "charge"); charge != "" {
		payload.ChargeID = charge
	}
	amountMinor := readInt64(objectRaw, "amount_refunded")
	if amountMinor <= 0 {
		amountMinor = readInt64(objectRaw, "amount")
	}
	payload.AmountRefundedMinor = amountMinor
	return payload
}

func parseSubscriptionPayload(objectRaw map[string]interface{}) *SubscriptionPayload {
	metadata := readMap(objectRaw, "metadata")
	payload := &SubscriptionPayload{
		SubscriptionID:     strings.TrimSpace(readString(objectRaw, "id")),
		CustomerRef:        readObjectID(objectRaw, "customer"),
		Status:             strings.ToLower(strings.TrimSpace(readString(objectRaw, "status"))),
		Currency:           strings.ToLower(strings.TrimSpace(readString(objectRaw, "currency"))),
		CurrentPeriodStart: readInt64(objectRaw, "current_period_start"),
		CurrentPeriodEnd:   readInt64(objectRaw, "current_period_end"),
		CancelAtPeriodEnd:  readBool(objectRaw, "cancel_at_period_end"),
		CanceledAt:         readInt64(objectRaw, "canceled_at"),
		ClinicID:           readUint(metadata, "clinic_id"),
	}

	// 计费周期与金额在 plan 或 items.data[0].plan 上
	plan := readMap(objectRaw, "plan")
	if plan == nil {
		if items := readMap(objectRaw, "items"); items != nil {
			if data, ok := items["data"].([]interface{}); ok && len(data) > 0 {
				if first, ok := data[0].(map[string]interface{}); ok {
					plan = readMap(first, "plan")
					if plan == nil {
						plan = readMap(first, "price")
					}
				}
			}
		}
	}
	if plan != nil {
		payload.IntervalUnit = strings.ToLower(strings.TrimSpace(readString(plan, "interval")))
		payload.IntervalCount = int(readInt64(plan, "interval_count"))
		payload.AmountMinor = readInt64(plan, "amount")
		if payload.AmountMinor <= 0 {
			payload.AmountMinor = readInt64(plan, "unit_amount")
		}
		if payload.Currency == "" {
			payload.Currency = strings.ToLower(strings.TrimSpace(readString(plan, "currency")))
		}
	}
	if payload.IntervalCount <= 0 {
		payload.IntervalCount = 1
	}
	return payload
}

// chargeKey 同一笔经济事件在不同对象类型下的统一键。
// checkout.session 与 charge 都携带 payment_intent，intent 对象本身即是键。
func chargeKey(objectRaw map[string]interface{}) string {
	if intent := readObjectID(objectRaw, "payment_intent"); intent != "" {
		return intent
	}
	objectType := strings.TrimSpace(readString(objectRaw, "object"))
	if objectType == "payment_intent" {
		return strings.TrimSpace(readString(objectRaw, "id"))
	}
	return strings.TrimSpace(readString(objectRaw, "id"))
}

// ComputeSignature 按共享密钥计算报文签名。
func ComputeSignature(secret string, timestamp int64, body []byte) string {
	payload := strconv.FormatInt(timestamp, 10) + "." + string(body)
	h := hmac.New(sha256.New, []byte(secret))
	_, _ = h.Write([]byte(payload))
	return strings.ToLower(hex.EncodeToString(h.Sum(nil)))
}

func parseSignatureHeader(signatureHeader string) (int64, []string, error) {
	timestamp := int64(0)
	signatures := make([]string, 0)
	parts := strings.Split(signatureHeader, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		value := strings.TrimSpace(kv[1])
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil || parsed <= 0 {
				return 0, nil, fmt.Errorf("%w: invalid timestamp", ErrSignatureInvalid)
			}
			timestamp = parsed
		case "v1":
			if value != "" {
				signatures = append(signatures, strings.ToLower(value))
			}
		}
	}
	if timestamp <= 0 {
		return 0, nil, fmt.Errorf("%w: timestamp is missing", ErrSignatureInvalid)
	}
	if len(signatures) == 0 {
		return 0, nil, fmt.Errorf("%w: v1 signature is missing", ErrSignatureInvalid)
	}
	return timestamp, signatures, nil
}

func getHeaderValue(headers map[string]string, key string) string {
	if len(headers) == 0 || strings.TrimSpace(key) == "" {
		return ""
	}
	for h, value := range headers {
		if strings.EqualFold(strings.TrimSpace(h), key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
