package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/config"
	"github.com/eonpro/eonpro-sub008/internal/constants"
	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/models"
	"github.com/eonpro/eonpro-sub008/internal/repository"
)

const (
	duplicateIPWindow = 30 * 24 * time.Hour
	velocityAvgWindow = 30 * 24 * time.Hour
	refundRateWindow  = 90 * 24 * time.Hour

	// 单客户维度的频率上限，独立于推广人维度的可配上限
	customerHourlyEventCeiling  = 4
	customerDailyPaymentCeiling = 8
)

var severityWeights = map[string]int{
	constants.FraudSeverityCritical: 40,
	constants.FraudSeverityHigh:     25,
	constants.FraudSeverityMedium:   15,
	constants.FraudSeverityLow:      5,
}

// FraudScoreInput 风控评分输入
type FraudScoreInput struct {
	AffiliateProfileID uint
	PatientID          uint
	PatientEmail       string
	SourceEventID      string
	CustomerRef        string
	ClientIP           string
}

// FraudScoreResult 风控评分结果
type FraudScoreResult struct {
	RiskScore      int
	Recommendation string
	Alerts         []models.FraudAlert
}

// FraudService 风控评分服务。
// 五项检查相互独立、并发执行；单项失败按"该项无告警"处理并记日志，
// 不中断整体评分。
type FraudService struct {
	commissionRepo repository.CommissionRepository
	eventRepo      repository.PaymentEventRepository
	ipIntel        *IPIntelService
	cfg            config.RiskConfig
}

// NewFraudService 创建风控评分服务
func NewFraudService(
	commissionRepo repository.CommissionRepository,
	eventRepo repository.PaymentEventRepository,
	ipIntel *IPIntelService,
	cfg config.RiskConfig,
) *FraudService {
	return &FraudService{
		commissionRepo: commissionRepo,
		eventRepo:      eventRepo,
		ipIntel:        ipIntel,
		cfg:            cfg,
	}
}

// Score 对一次归因尝试做风控评分。
func (s *FraudService) Score(ctx context.Context, input FraudScoreInput) *FraudScoreResult {
	if s.cfg.ScoreTimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.ScoreTimeoutSeconds)*time.Second)
		defer cancel()
	}

	checks := []func(context.Context, FraudScoreInput) *models.FraudAlert{
		s.checkSelfReferral,
		s.checkDuplicateIP,
		s.checkVelocity,
		s.checkIPReputation,
		s.checkRefundRate,
	}

	results := make([]*models.FraudAlert, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(idx int, fn func(context.Context, FraudScoreInput) *models.FraudAlert) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logger.Errorw("fraud_check_panicked", "check", idx, "panic", r)
				}
			}()
			results[idx] = fn(ctx, input)
		}(i, check)
	}
	wg.Wait()

	result := &FraudScoreResult{Recommendation: constants.RiskRecommendationApprove}
	hasCritical := false
	hasHigh := false
	for _, alert := range results {
		if alert == nil {
			continue
		}
		alert.AffiliateProfileID = input.AffiliateProfileID
		alert.PatientID = input.PatientID
		alert.SourceEventID = input.SourceEventID
		alert.Status = constants.FraudAlertStatusOpen
		result.Alerts = append(result.Alerts, *alert)
		result.RiskScore += severityWeights[alert.Severity]
		switch alert.Severity {
		case constants.FraudSeverityCritical:
			hasCritical = true
		case constants.FraudSeverityHigh:
			hasHigh = true
		}
	}
	if result.RiskScore > 100 {
		result.RiskScore = 100
	}

	switch {
	case hasCritical:
		result.Recommendation = constants.RiskRecommendationReject
	case result.RiskScore >= 50 || hasHigh:
		result.Recommendation = constants.RiskRecommendationReview
	case result.RiskScore >= 25:
		result.Recommendation = constants.RiskRecommendationReview
	default:
		result.Recommendation = constants.RiskRecommendationApprove
	}
	for i := range result.Alerts {
		result.Alerts[i].Score = result.RiskScore
		result.Alerts[i].Recommendation = result.Recommendation
	}
	return result
}

// checkSelfReferral 自推识别：推广人邮箱与患者邮箱一致，
// 或推广人自有IP上的触点量异常。
func (s *FraudService) checkSelfReferral(_ context.Context, input FraudScoreInput) *models.FraudAlert {
	profile, err := s.commissionRepo.GetProfileByID(input.AffiliateProfileID)
	if err != nil {
		logger.Warnw("fraud_self_referral_check_failed", "error", err)
		return nil
	}
	if profile == nil {
		return nil
	}

	profileEmail := strings.ToLower(strings.TrimSpace(profile.Email))
	patientEmail := strings.ToLower(strings.TrimSpace(input.PatientEmail))
	if profileEmail != "" && profileEmail == patientEmail {
		return &models.FraudAlert{
			AlertType: constants.FraudAlertSelfReferral,
			Severity:  constants.FraudSeverityCritical,
			Detail: models.JSON{
				"reason":          "affiliate email matches patient email",
				"affiliate_email": profileEmail,
			},
		}
	}

	if input.ClientIP != "" && profile.SignupIP != "" && input.ClientIP == profile.SignupIP {
		return &models.FraudAlert{
			AlertType: constants.FraudAlertSelfReferral,
			Severity:  constants.FraudSeverityHigh,
			Detail: models.JSON{
				"reason": "conversion ip matches affiliate signup ip",
				"ip":     input.ClientIP,
			},
		}
	}

	count, err := s.commissionRepo.CountTouchesByProfileAndIP(input.AffiliateProfileID, input.ClientIP, time.Now().UTC().Add(-duplicateIPWindow))
	if err != nil {
		logger.Warnw("fraud_self_referral_check_failed", "error", err)
		return nil
	}
	if count >= 10 {
		return &models.FraudAlert{
			AlertType: constants.FraudAlertSelfReferral,
			Severity:  constants.FraudSeverityHigh,
			Detail: models.JSON{
				"reason":      "excessive touch volume from one ip",
				"ip":          input.ClientIP,
				"touch_count": count,
			},
		}
	}
	return nil
}

// checkDuplicateIP 重复IP识别：30 天窗口内同IP转化数超阈值，
// 超阈值倍数越高级别越高。
func (s *FraudService) checkDuplicateIP(_ context.Context, input FraudScoreInput) *models.FraudAlert {
	if input.ClientIP == "" {
		return nil
	}
	threshold := s.cfg.DuplicateIPThreshold
	if threshold <= 0 {
		threshold = 3
	}
	since := time.Now().UTC().Add(-duplicateIPWindow)
	count, err := s.commissionRepo.CountEventsByProfileAndIPSince(input.AffiliateProfileID, input.ClientIP, since)
	if err != nil {
		logger.Warnw("fraud_duplicate_ip_check_failed", "error", err)
		return nil
	}
	if count < int64(threshold) {
		return nil
	}
	severity := constants.FraudSeverityMedium
	if count >= int64(threshold*2) {
		severity = constants.FraudSeverityHigh
	}
	return &models.FraudAlert{
		AlertType: constants.FraudAlertDuplicateIP,
		Severity:  severity,
		Detail: models.JSON{
			"ip":          input.ClientIP,
			"conversions": count,
			"threshold":   threshold,
			"window_days": 30,
		},
	}
}

// checkVelocity 频率突增识别：推广人小时/日转化数超固定上限为高危，
// 单客户维度的事件频率超上限同样为高危（疑似盗卡测试），
// 超 30 天日均倍数为中危。
func (s *FraudService) checkVelocity(_ context.Context, input FraudScoreInput) *models.FraudAlert {
	now := time.Now().UTC()
	hourly, err := s.commissionRepo.CountEventsByProfileSince(input.AffiliateProfileID, now.Add(-time.Hour))
	if err != nil {
		logger.Warnw("fraud_velocity_check_failed", "error", err)
		return nil
	}
	daily, err := s.commissionRepo.CountEventsByProfileSince(input.AffiliateProfileID, now.Add(-24*time.Hour))
	if err != nil {
		logger.Warnw("fraud_velocity_check_failed", "error", err)
		return nil
	}

	hourlyCeiling := s.cfg.VelocityHourlyCeiling
	if hourlyCeiling <= 0 {
		hourlyCeiling = 8
	}
	dailyCeiling := s.cfg.VelocityDailyCeiling
	if dailyCeiling <= 0 {
		dailyCeiling = 40
	}
	if hourly >= int64(hourlyCeiling) || daily >= int64(dailyCeiling) {
		return &models.FraudAlert{
			AlertType: constants.FraudAlertVelocitySpike,
			Severity:  constants.FraudSeverityHigh,
			Detail: models.JSON{
				"hourly":         hourly,
				"daily":          daily,
				"hourly_ceiling": hourlyCeiling,
				"daily_ceiling":  dailyCeiling,
			},
		}
	}

	if alert := s.checkCustomerVelocity(input, now); alert != nil {
		return alert
	}

	monthly, err := s.commissionRepo.CountEventsByProfileSince(input.AffiliateProfileID, now.Add(-velocityAvgWindow))
	if err != nil {
		logger.Warnw("fraud_velocity_check_failed", "error", err)
		return nil
	}
	factor := s.cfg.VelocityAverageFactor
	if factor <= 0 {
		factor = 3.0
	}
	dailyAvg := float64(monthly) / 30.0
	if dailyAvg >= 1 && float64(daily) > dailyAvg*factor {
		return &models.FraudAlert{
			AlertType: constants.FraudAlertVelocitySpike,
			Severity:  constants.FraudSeverityMedium,
			Detail: models.JSON{
				"daily":       daily,
				"daily_avg":   dailyAvg,
				"factor":      factor,
				"window_days": 30,
			},
		}
	}
	return nil
}

// checkCustomerVelocity 单客户频率：一小时内事件数或一天内成功
// 支付数超上限即告警，不看推广人维度。
func (s *FraudService) checkCustomerVelocity(input FraudScoreInput, now time.Time) *models.FraudAlert {
	if s.eventRepo == nil || input.CustomerRef == "" {
		return nil
	}
	hourly, err := s.eventRepo.CountByCustomerSince(input.CustomerRef,
		[]string{constants.EventKindPaymentSucceeded, constants.EventKindRefund, constants.EventKindDispute},
		now.Add(-time.Hour))
	if err != nil {
		logger.Warnw("fraud_velocity_check_failed", "error", err)
		return nil
	}
	dailyPaid, err := s.eventRepo.CountByKindSince(input.CustomerRef,
		constants.EventKindPaymentSucceeded, now.Add(-24*time.Hour))
	if err != nil {
		logger.Warnw("fraud_velocity_check_failed", "error", err)
		return nil
	}
	if hourly < customerHourlyEventCeiling && dailyPaid < customerDailyPaymentCeiling {
		return nil
	}
	return &models.FraudAlert{
		AlertType: constants.FraudAlertVelocitySpike,
		Severity:  constants.FraudSeverityHigh,
		Detail: models.JSON{
			"reason":                "customer payment velocity",
			"customer_ref":          input.CustomerRef,
			"hourly_events":         hourly,
			"daily_payments":        dailyPaid,
			"hourly_ceiling":        customerHourlyEventCeiling,
			"daily_payment_ceiling": customerDailyPaymentCeiling,
		},
	}
}

// checkIPReputation IP 信誉识别：Tor 为致命，机房为高危，
// 代理/VPN 为中危，风险分超下限按分值定级。
func (s *FraudService) checkIPReputation(ctx context.Context, input FraudScoreInput) *models.FraudAlert {
	if input.ClientIP == "" || s.ipIntel == nil {
		return nil
	}
	intel, err := s.ipIntel.Lookup(ctx, input.ClientIP)
	if err != nil {
		logger.Warnw("fraud_ip_reputation_check_failed", "error", err)
		return nil
	}

	detail := models.JSON{
		"provider":   intel.Provider,
		"risk_score": intel.RiskScore,
		"country":    intel.Country,
	}
	switch {
	case intel.IsTor:
		detail["flag"] = "tor"
		return &models.FraudAlert{
			AlertType: constants.FraudAlertSuspiciousPattern,
			Severity:  constants.FraudSeverityCritical,
			Detail:    detail,
		}
	case intel.IsHosting:
		detail["flag"] = "datacenter"
		return &models.FraudAlert{
			AlertType: constants.FraudAlertSuspiciousPattern,
			Severity:  constants.FraudSeverityHigh,
			Detail:    detail,
		}
	case intel.IsProxy || intel.IsVPN:
		detail["flag"] = "proxy_or_vpn"
		return &models.FraudAlert{
			AlertType: constants.FraudAlertSuspiciousPattern,
			Severity:  constants.FraudSeverityMedium,
			Detail:    detail,
		}
	}

	floor := s.cfg.Reputation.RiskScoreFloor
	if floor <= 0 {
		floor = 75
	}
	if intel.RiskScore >= floor {
		severity := constants.FraudSeverityMedium
		if intel.RiskScore >= 90 {
			severity = constants.FraudSeverityHigh
		}
		detail["flag"] = "risk_score"
		return &models.FraudAlert{
			AlertType: constants.FraudAlertSuspiciousPattern,
			Severity:  severity,
			Detail:    detail,
		}
	}
	return nil
}

// checkRefundRate 退款率识别：90 天窗口内冲正占比超阈值，
// 达到阈值两倍升为高危。样本量不足不判定。
func (s *FraudService) checkRefundRate(_ context.Context, input FraudScoreInput) *models.FraudAlert {
	minSample := s.cfg.RefundRateMinSample
	if minSample <= 0 {
		minSample = 10
	}
	threshold := s.cfg.RefundRateThresholdPct
	if threshold <= 0 {
		threshold = 15.0
	}

	since := time.Now().UTC().Add(-refundRateWindow)
	total, reversed, err := s.commissionRepo.ReversalStatsByProfile(input.AffiliateProfileID, since)
	if err != nil {
		logger.Warnw("fraud_refund_rate_check_failed", "error", err)
		return nil
	}
	if total < int64(minSample) {
		return nil
	}
	ratePct := float64(reversed) / float64(total) * 100
	if ratePct < threshold {
		return nil
	}
	severity := constants.FraudSeverityMedium
	if ratePct >= threshold*2 {
		severity = constants.FraudSeverityHigh
	}
	return &models.FraudAlert{
		AlertType: constants.FraudAlertRefundAbuse,
		Severity:  severity,
		Detail: models.JSON{
			"refund_rate_pct": fmt.Sprintf("%.1f", ratePct),
			"threshold_pct":   threshold,
			"sample":          total,
			"reversed":        reversed,
			"window_days":     90,
		},
	}
}
