package public

import "github.com/eonpro/eonpro-sub008/internal/provider"

// Handler 公开接口处理器入口
// 说明：该处理器仅用于网关回调与运维触发入口。
type Handler struct {
	*provider.Container
}

// New 创建公开处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
