package public

import (
	"github.com/eonpro/eonpro-sub008/internal/http/response"
	"github.com/eonpro/eonpro-sub008/internal/models"

	"github.com/gin-gonic/gin"
)

// Healthz 健康检查。
func (h *Handler) Healthz(c *gin.Context) {
	dbOK := false
	if models.DB != nil {
		if sqlDB, err := models.DB.DB(); err == nil {
			dbOK = sqlDB.PingContext(c.Request.Context()) == nil
		}
	}
	response.Success(c, gin.H{
		"status":   "ok",
		"database": dbOK,
	})
}
