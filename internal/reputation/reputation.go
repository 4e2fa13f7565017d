package reputation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/constants"

	"github.com/sony/gobreaker/v2"
)

var (
	ErrConfigInvalid   = errors.New("reputation config invalid")
	ErrRequestFailed   = errors.New("reputation request failed")
	ErrResponseInvalid = errors.New("reputation response invalid")
)

const defaultTimeout = 5 * time.Second

// Result IP 信誉查询结果。
type Result struct {
	IsProxy   bool   `json:"is_proxy"`
	IsVPN     bool   `json:"is_vpn"`
	IsTor     bool   `json:"is_tor"`
	IsHosting bool   `json:"is_hosting"`
	IsBot     bool   `json:"is_bot"`
	RiskScore int    `json:"risk_score"`
	Country   string `json:"country"`
	Provider  string `json:"provider"`
}

// Provider IP 信誉数据源。
type Provider interface {
	Lookup(ctx context.Context, ip string) (*Result, error)
}

// APIConfig 外部信誉服务配置。
type APIConfig struct {
	Endpoint       string
	APIKey         string
	TimeoutSeconds int
}

// APIProvider 外部信誉服务客户端，出站请求走熔断器。
type APIProvider struct {
	cfg        APIConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*Result]
}

// NewAPIProvider 创建外部信誉服务客户端。
func NewAPIProvider(cfg APIConfig) (*APIProvider, error) {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint is required", ErrConfigInvalid)
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("%w: endpoint is invalid", ErrConfigInvalid)
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	breaker := gobreaker.NewCircuitBreaker[*Result](gobreaker.Settings{
		Name:        "ip-reputation",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && counts.TotalFailures*2 >= counts.Requests
		},
	})
	return &APIProvider{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}, nil
}

// Lookup 查询外部信誉服务。
func (p *APIProvider) Lookup(ctx context.Context, ip string) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil, fmt.Errorf("%w: ip is required", ErrConfigInvalid)
	}
	return p.breaker.Execute(func() (*Result, error) {
		endpoint := p.cfg.Endpoint + "/" + url.PathEscape(ip)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: build request failed", ErrRequestFailed)
		}
		if p.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
		}

		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: read response failed", ErrResponseInvalid)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("%w: lookup status %d", ErrResponseInvalid, resp.StatusCode)
		}
		result, err := decodeResult(body)
		if err != nil {
			return nil, err
		}
		result.Provider = constants.IPIntelProviderAPI
		return result, nil
	})
}
