package service

import (
	"time"

	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/models"
	"github.com/eonpro/eonpro-sub008/internal/repository"

	"gorm.io/gorm"
)

// RefillService 续方队列自动匹配服务
type RefillService struct {
	repo repository.RefillRepository
}

// NewRefillService 创建续方匹配服务
func NewRefillService(repo repository.RefillRepository) *RefillService {
	return &RefillService{repo: repo}
}

// WithTx 绑定事务
func (s *RefillService) WithTx(tx *gorm.DB) *RefillService {
	if tx == nil {
		return s
	}
	return &RefillService{repo: s.repo.WithTx(tx)}
}

// AutoMatch 用一笔确认支付匹配患者的待支付续方条目。
// 从旧到新扫描，只命中预期金额被本笔支付覆盖的条目，且一笔支付
// 至多满足一条；金额覆盖但不完全相等的命中打上人工复核标记。
// 支付携带账单号时一并记在命中条目上，便于对账单核对。
func (s *RefillService) AutoMatch(patientID, clinicID uint, eventID, invoiceRef string, amount models.Money) ([]uint, error) {
	entries, err := s.repo.ListPendingPaymentByPatient(patientID, clinicID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	matched := make([]uint, 0, 1)
	for _, entry := range entries {
		if amount.Decimal.LessThan(entry.ExpectedAmount.Decimal) {
			continue
		}
		mismatch := !amount.Decimal.Equal(entry.ExpectedAmount.Decimal)
		updated, err := s.repo.MarkPaymentVerified(entry.ID, eventID, invoiceRef, amount, mismatch, now)
		if err != nil {
			return matched, err
		}
		if !updated {
			// 并发匹配竞争失败，换下一条
			continue
		}
		matched = append(matched, entry.ID)
		logger.Infow("refill_payment_matched",
			"refill_entry_id", entry.ID,
			"patient_id", patientID,
			"event_id", eventID,
			"amount_mismatch", mismatch)
		break
	}
	return matched, nil
}

// List 查询续方队列（管理端）
func (s *RefillService) List(filter repository.RefillQueueListFilter) ([]models.RefillQueueEntry, int64, error) {
	return s.repo.List(filter)
}
