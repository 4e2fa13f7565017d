package service

import (
	"context"
	"strings"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/billing"
	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/models"
	"github.com/eonpro/eonpro-sub008/internal/repository"

	"gorm.io/gorm"
)

// BillingCustomerFetcher 上游客户查询接口（兜底解析取邮箱用）
type BillingCustomerFetcher interface {
	GetCustomer(ctx context.Context, customerRef string) (*billing.Customer, error)
}

// PatientRef 解析结果：上游客户对应的本地患者
type PatientRef struct {
	PatientID uint
	ClinicID  uint
}

// ResolverService 患者/客户解析服务。
// 主路径查既有关联；未命中且带诊所范围时走邮箱兜底，
// 兜底命中顺带修复关联，下次主路径直接命中。
type ResolverService struct {
	patientRepo repository.PatientRepository
	fetcher     BillingCustomerFetcher
}

// NewResolverService 创建解析服务
func NewResolverService(patientRepo repository.PatientRepository, fetcher BillingCustomerFetcher) *ResolverService {
	return &ResolverService{
		patientRepo: patientRepo,
		fetcher:     fetcher,
	}
}

// WithTx 绑定事务
func (s *ResolverService) WithTx(tx *gorm.DB) *ResolverService {
	if tx == nil {
		return s
	}
	return &ResolverService{
		patientRepo: s.patientRepo.WithTx(tx),
		fetcher:     s.fetcher,
	}
}

// Resolve 解析上游客户标识。未命中返回 ErrCustomerUnresolved，
// 这是预期稳态而非故障。
func (s *ResolverService) Resolve(ctx context.Context, customerRef string, clinicHint uint) (*PatientRef, error) {
	customerRef = strings.TrimSpace(customerRef)
	if customerRef == "" {
		return nil, ErrCustomerUnresolved
	}

	link, err := s.patientRepo.GetLinkByCustomerRef(customerRef)
	if err != nil {
		return nil, err
	}
	if link != nil {
		return &PatientRef{PatientID: link.PatientID, ClinicID: link.ClinicID}, nil
	}

	// 邮箱兜底必须限定诊所范围，避免跨租户串数据
	if clinicHint == 0 || s.fetcher == nil {
		return nil, ErrCustomerUnresolved
	}
	customer, err := s.fetcher.GetCustomer(ctx, customerRef)
	if err != nil {
		logger.Warnw("resolver_customer_fetch_failed", "customer_ref", customerRef, "error", err)
		return nil, ErrCustomerUnresolved
	}
	if customer == nil || strings.TrimSpace(customer.Email) == "" {
		return nil, ErrCustomerUnresolved
	}

	patient, err := s.patientRepo.GetByEmailAndClinic(customer.Email, clinicHint)
	if err != nil {
		return nil, err
	}
	if patient == nil {
		return nil, ErrCustomerUnresolved
	}

	now := time.Now().UTC()
	newLink := &models.CustomerLink{
		CustomerRef: customerRef,
		PatientID:   patient.ID,
		ClinicID:    patient.ClinicID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	// 幂等写入，并发解析时以先提交的关联为准
	if _, err := s.patientRepo.InsertLinkIfNew(newLink); err != nil {
		return nil, err
	}
	existing, err := s.patientRepo.GetLinkByCustomerRef(customerRef)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return &PatientRef{PatientID: existing.PatientID, ClinicID: existing.ClinicID}, nil
	}
	return &PatientRef{PatientID: patient.ID, ClinicID: patient.ClinicID}, nil
}
