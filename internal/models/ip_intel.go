package models

import "time"

// IPIntel IP 情报缓存记录
// 只保存IP哈希，不落原始IP。过期条目在下次查询时惰性淘汰。
type IPIntel struct {
	ID        uint      `gorm:"primarykey" json:"id"`                                      // 主键
	IPHash    string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"ip_hash"`      // IP哈希
	IsProxy   bool      `gorm:"not null;default:false" json:"is_proxy"`                    // 代理
	IsVPN     bool      `gorm:"not null;default:false" json:"is_vpn"`                      // VPN
	IsTor     bool      `gorm:"not null;default:false" json:"is_tor"`                      // Tor出口
	IsHosting bool      `gorm:"not null;default:false" json:"is_hosting"`                  // 机房/托管
	IsBot     bool      `gorm:"not null;default:false" json:"is_bot"`                      // 爬虫/机器人
	RiskScore int       `gorm:"not null;default:0" json:"risk_score"`                      // 提供方风险分
	Country   string    `gorm:"type:varchar(10)" json:"country"`                           // 国家代码
	Provider  string    `gorm:"type:varchar(20)" json:"provider"`                          // 数据来源（api/heuristic）
	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`                          // 过期时间
	CreatedAt time.Time `json:"created_at"`                                                // 创建时间
	UpdatedAt time.Time `json:"updated_at"`                                                // 更新时间
}

// TableName 指定表名
func (IPIntel) TableName() string {
	return "ip_intels"
}

// Expired 判断缓存条目是否过期
func (i *IPIntel) Expired(now time.Time) bool {
	return !i.ExpiresAt.After(now)
}
