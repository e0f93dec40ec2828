package scheduler

import (
	"context"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"smartfolio/internal/domain"
	"smartfolio/internal/orchestrator"
)

// Scheduler 定时驱动执行监控和批量推送。
// 每个任务同一时刻只允许一个实例在跑，上一轮没结束就跳过本轮。
type Scheduler struct {
	service *orchestrator.Service

	monitorInterval time.Duration
	pushInterval    time.Duration
	pushSources     []domain.SourceType

	monitorBusy atomic.Bool
	pushBusy    atomic.Bool
	stop        chan struct{}
}

// New 创建定时调度器。pushSourcesStr 为逗号分隔的来源列表。
func New(service *orchestrator.Service, monitorIntervalSec, pushIntervalSec int, pushSourcesStr string) *Scheduler {
	var sources []domain.SourceType
	for _, p := range strings.Split(pushSourcesStr, ",") {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if !domain.IsValidSource(p) {
			log.Printf("⚠ [定时器] 忽略非法推送来源: %s", p)
			continue
		}
		sources = append(sources, domain.SourceType(p))
	}
	if len(sources) == 0 {
		sources = []domain.SourceType{domain.SourcePortSummary}
	}

	return &Scheduler{
		service:         service,
		monitorInterval: time.Duration(monitorIntervalSec) * time.Second,
		pushInterval:    time.Duration(pushIntervalSec) * time.Second,
		pushSources:     sources,
		stop:            make(chan struct{}),
	}
}

// Start 启动定时任务（非阻塞，在后台 goroutine 运行）。
// 间隔为 0 的任务不启动。
func (s *Scheduler) Start() {
	log.Printf("▶ [定时器] 已启动 监控间隔=%s 推送间隔=%s 推送来源=%v",
		s.monitorInterval, s.pushInterval, s.pushSources)

	if s.monitorInterval > 0 {
		go s.loop(s.monitorInterval, s.runMonitor)
	}
	if s.pushInterval > 0 {
		go s.loop(s.pushInterval, s.runPush)
	}
}

func (s *Scheduler) loop(interval time.Duration, run func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			run()
		case <-s.stop:
			log.Println("■ [定时器] 已停止")
			return
		}
	}
}

// Stop 停止定时任务
func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) runMonitor() {
	if !s.monitorBusy.CompareAndSwap(false, true) {
		log.Println("⚠ [定时器] 上一轮监控未结束，跳过本轮")
		return
	}
	defer s.monitorBusy.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if _, err := s.service.RunMonitorCycle(ctx); err != nil {
		log.Printf("✘ [定时器] 监控周期失败: %v", err)
	}
}

func (s *Scheduler) runPush() {
	if !s.pushBusy.CompareAndSwap(false, true) {
		log.Println("⚠ [定时器] 上一轮推送未结束，跳过本轮")
		return
	}
	defer s.pushBusy.Store(false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for _, source := range s.pushSources {
		if _, err := s.service.PushAllTokens(ctx, source); err != nil {
			log.Printf("✘ [定时器] 来源 %s 批量推送失败: %v", source, err)
		}
	}
}
