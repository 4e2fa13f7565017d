package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/eonpro/eonpro-sub008/internal/config"
	"github.com/eonpro/eonpro-sub008/internal/logger"
	"github.com/eonpro/eonpro-sub008/internal/models"
	"github.com/eonpro/eonpro-sub008/internal/provider"
)

// 一次性对账扫描入口，给 cron 或手工运维使用。
// 与常驻服务共用同一容器与分发路径，重复执行安全。
func main() {
	var windowHours int
	var timeoutMinutes int
	flag.IntVar(&windowHours, "window", 0, "对账窗口小时数（0 使用配置默认值）")
	flag.IntVar(&timeoutMinutes, "timeout", 30, "单次扫描超时分钟数")
	flag.Parse()

	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()

	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("数据库初始化失败: %v", err)
	}
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("数据库迁移失败: %v", err)
	}

	container := provider.NewContainer(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMinutes)*time.Minute)
	defer cancel()

	run, err := container.ReconciliationService.Run(ctx, windowHours)
	if err != nil {
		stdLog.Fatalf("对账扫描失败: %v", err)
	}
	fmt.Printf("reconciliation run %d: status=%s upstream=%d missing=%d replayed=%d\n",
		run.ID, run.Status, run.TotalUpstream, run.MissingCount, run.ReplayedCount)
}
