package engine

import (
	"context"
	"log"
	"time"

	"quantforge.com/internal/config"
	"quantforge.com/internal/domain"
	"quantforge.com/internal/infra"
)

// dequeueTimeout is how long one blocking pop waits before the loop checks
// for shutdown.
const dequeueTimeout = time.Second

// Engine 是一个轻量级协调器，负责：
// 1. 启动 WebSocket 管理器
// 2. 运行回测任务的工作循环（出队并派发给回测服务）
// 3. 启动时探测外部执行引擎的可用性
type Engine struct {
	cfg *config.Config

	// 基础设施
	websocketHub *infra.WsHub
	queue        domain.JobQueue

	// 业务服务 (依赖接口)
	backtestService domain.BacktestService
	engineClient    domain.EngineClient

	// 上下文控制
	ctx    context.Context
	cancel context.CancelFunc
}

// NewEngine 创建引擎
func NewEngine(
	cfg *config.Config,
	websocketHub *infra.WsHub,
	queue domain.JobQueue,
	backtestService domain.BacktestService,
	engineClient domain.EngineClient,
) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		cfg:             cfg,
		websocketHub:    websocketHub,
		queue:           queue,
		backtestService: backtestService,
		engineClient:    engineClient,
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start 启动引擎后台进程
func (e *Engine) Start() {
	log.Println("Engine: Starting...")

	// 1. 启动 WebSocket 管理器
	go e.websocketHub.Start()

	// 2. 探测执行引擎；不可用时仍然启动，任务会以失败终态落库
	if err := e.engineClient.Health(e.ctx); err != nil {
		log.Printf("Engine: Execution engine not reachable at startup: %v", err)
	} else {
		log.Printf("Engine: Execution engine healthy at %s", e.cfg.Engine.BaseURL)
	}

	// 3. 启动回测任务工作循环
	go e.runJobLoop()

	log.Println("Engine: Started successfully")
}

// runJobLoop 阻塞式出队并派发回测任务
func (e *Engine) runJobLoop() {
	for {
		select {
		case <-e.ctx.Done():
			log.Println("Engine: Job loop stopped")
			return
		default:
		}

		backtestID, ok, err := e.queue.Dequeue(e.ctx, dequeueTimeout)
		if err != nil {
			if e.ctx.Err() != nil {
				return
			}
			log.Printf("Engine: Failed to dequeue job: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}

		// 每个任务独立 goroutine，慢任务不阻塞队列
		go e.backtestService.ProcessJob(e.ctx, backtestID)
	}
}

// Stop 停止引擎
func (e *Engine) Stop() {
	log.Println("Engine: Stopping...")
	e.cancel()
}
