package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/cache"
	"github.com/eonpro/eonpro-sub008/internal/config"
	"github.com/eonpro/eonpro-sub008/internal/constants"
	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/models"
	"github.com/eonpro/eonpro-sub008/internal/reputation"
	"github.com/eonpro/eonpro-sub008/internal/repository"
)

const defaultIPIntelTTL = 24 * time.Hour

// IPIntelService IP 情报缓存服务。
// 缓存以IP哈希为键，原始IP不落任何存储。外部信誉服务失败或熔断时
// 退化到本地启发式判定，调用方总能拿到结果。
type IPIntelService struct {
	repo      repository.IPIntelRepository
	provider  reputation.Provider
	heuristic reputation.Provider
	ttl       time.Duration
}

// NewIPIntelService 创建 IP 情报服务
func NewIPIntelService(repo repository.IPIntelRepository, provider reputation.Provider, cfg config.ReputationConfig) *IPIntelService {
	ttl := defaultIPIntelTTL
	if cfg.CacheTTLHours > 0 {
		ttl = time.Duration(cfg.CacheTTLHours) * time.Hour
	}
	return &IPIntelService{
		repo:      repo,
		provider:  provider,
		heuristic: reputation.NewHeuristicProvider(),
		ttl:       ttl,
	}
}

// HashIP IP 哈希（缓存键）
func HashIP(ip string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(ip)))
	return hex.EncodeToString(sum[:])
}

// Lookup 查询 IP 信誉。缓存命中直接返回；未命中走外部服务，
// 失败则走本地启发式；结果一律回写缓存。
func (s *IPIntelService) Lookup(ctx context.Context, ip string) (*models.IPIntel, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil, fmt.Errorf("ip is required")
	}
	ipHash := HashIP(ip)
	now := time.Now().UTC()

	cacheKey := "ipintel:" + ipHash
	var cached models.IPIntel
	if hit, err := cache.GetJSON(ctx, cacheKey, &cached); err == nil && hit && !cached.Expired(now) {
		return &cached, nil
	}

	if s.repo != nil {
		stored, err := s.repo.GetByHash(ipHash)
		if err != nil {
			logger.Warnw("ip_intel_cache_read_failed", "error", err)
		} else if stored != nil {
			if !stored.Expired(now) {
				_ = cache.SetJSON(ctx, cacheKey, stored, s.ttl)
				return stored, nil
			}
			// 惰性淘汰过期条目
			if err := s.repo.DeleteByHash(ipHash); err != nil {
				logger.Warnw("ip_intel_cache_evict_failed", "error", err)
			}
		}
	}

	result := s.resolve(ctx, ip)
	intel := &models.IPIntel{
		IPHash:    ipHash,
		IsProxy:   result.IsProxy,
		IsVPN:     result.IsVPN,
		IsTor:     result.IsTor,
		IsHosting: result.IsHosting,
		IsBot:     result.IsBot,
		RiskScore: result.RiskScore,
		Country:   result.Country,
		Provider:  result.Provider,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if s.repo != nil {
		if err := s.repo.Upsert(intel); err != nil {
			logger.Warnw("ip_intel_cache_write_failed", "error", err)
		}
	}
	_ = cache.SetJSON(ctx, cacheKey, intel, s.ttl)
	return intel, nil
}

func (s *IPIntelService) resolve(ctx context.Context, ip string) *reputation.Result {
	if s.provider != nil {
		result, err := s.provider.Lookup(ctx, ip)
		if err == nil && result != nil {
			return result
		}
		logger.Warnw("ip_reputation_provider_failed", "error", err)
	}
	result, err := s.heuristic.Lookup(ctx, ip)
	if err != nil || result == nil {
		logger.Warnw("ip_reputation_heuristic_failed", "error", err)
		return &reputation.Result{Provider: constants.IPIntelProviderHeuristic}
	}
	return result
}
