package main

import (
	"context"
	"log"
	"time"

	"smartfolio/internal/advisor"
	"smartfolio/internal/config"
	"smartfolio/internal/framework"
	httpapi "smartfolio/internal/http"
	"smartfolio/internal/market"
	"smartfolio/internal/orchestrator"
	"smartfolio/internal/scheduler"
	"smartfolio/internal/store"
	"smartfolio/internal/strategy"
)

func main() {
	cfg := config.Load()

	repo, err := store.NewSQLiteRepository(cfg.SQLiteDSN)
	if err != nil {
		log.Fatalf("初始化数据库失败: %v", err)
	}
	defer repo.Close()

	if err := repo.Init(context.Background()); err != nil {
		log.Fatalf("数据库迁移失败: %v", err)
	}

	prices := market.NewDexScreenerClient(cfg.DexScreenerBaseURL, time.Duration(cfg.PriceTimeoutSec)*time.Second)
	registry := strategy.NewRegistry()

	fw := framework.New(repo, prices, registry)
	monitor := framework.NewExecutionMonitor(fw, repo)
	adv := advisor.New(cfg)

	service := orchestrator.New(repo, fw, monitor, prices, adv, cfg.AutoReviewEnabled)

	// 定时任务：执行监控 + 批量推送，各自独立开关
	monitorInterval := 0
	if cfg.MonitorEnabled {
		monitorInterval = cfg.MonitorIntervalSec
	}
	pushInterval := 0
	if cfg.PushEnabled {
		pushInterval = cfg.PushIntervalSec
	}
	if monitorInterval > 0 || pushInterval > 0 {
		sched := scheduler.New(service, monitorInterval, pushInterval, cfg.PushSources)
		sched.Start()
		defer sched.Stop()
	} else {
		log.Println("■ [定时器] 未启用，设置 MONITOR_ENABLED=true 或 PUSH_ENABLED=true 开启")
	}

	router := httpapi.NewRouter(service, cfg.RequestTimeoutSec)

	log.Printf("🚀 Smartfolio 策略执行服务启动 地址=%s", cfg.HTTPAddr)
	if err := router.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("启动服务失败: %v", err)
	}
}
