package reputation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"

	"github.com/eonpro/eonpro-sub008/internal/constants"
)

// 常见机房/云厂商网段。外部信誉服务不可用时的本地兜底，
// 覆盖面有限但不对外产生调用。
var datacenterPrefixes = []netip.Prefix{
	netip.MustParsePrefix("3.0.0.0/8"),      // AWS
	netip.MustParsePrefix("13.52.0.0/14"),   // AWS
	netip.MustParsePrefix("18.128.0.0/9"),   // AWS
	netip.MustParsePrefix("34.64.0.0/10"),   // GCP
	netip.MustParsePrefix("35.184.0.0/13"),  // GCP
	netip.MustParsePrefix("20.33.0.0/16"),   // Azure
	netip.MustParsePrefix("40.64.0.0/10"),   // Azure
	netip.MustParsePrefix("104.16.0.0/13"),  // Cloudflare
	netip.MustParsePrefix("138.197.0.0/16"), // DigitalOcean
	netip.MustParsePrefix("159.65.0.0/16"),  // DigitalOcean
	netip.MustParsePrefix("167.99.0.0/16"),  // DigitalOcean
	netip.MustParsePrefix("45.32.0.0/16"),   // Vultr
	netip.MustParsePrefix("144.202.0.0/16"), // Vultr
	netip.MustParsePrefix("51.15.0.0/16"),   // Scaleway
	netip.MustParsePrefix("135.181.0.0/16"), // Hetzner
	netip.MustParsePrefix("65.21.0.0/16"),   // Hetzner
	netip.MustParsePrefix("51.38.0.0/16"),   // OVH
	netip.MustParsePrefix("54.36.0.0/16"),   // OVH
}

// HeuristicProvider 本地启发式信誉判定。
// 无外部依赖，永远返回结果。
type HeuristicProvider struct{}

// NewHeuristicProvider 创建启发式信誉判定。
func NewHeuristicProvider() *HeuristicProvider {
	return &HeuristicProvider{}
}

// Lookup 本地判定：机房网段视为托管，私有/回环网段视为低风险内网。
func (p *HeuristicProvider) Lookup(_ context.Context, ip string) (*Result, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return nil, fmt.Errorf("%w: ip is invalid", ErrConfigInvalid)
	}

	result := &Result{Provider: constants.IPIntelProviderHeuristic}
	if addr.IsPrivate() || addr.IsLoopback() || addr.IsLinkLocalUnicast() {
		return result, nil
	}
	for _, prefix := range datacenterPrefixes {
		if prefix.Contains(addr) {
			result.IsHosting = true
			result.RiskScore = 60
			return result, nil
		}
	}
	return result, nil
}

func decodeResult(body []byte) (*Result, error) {
	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: decode result failed", ErrResponseInvalid)
	}
	return &result, nil
}
