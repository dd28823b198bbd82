package main

import (
	"context"
	"log"
	"time"

	"quantforge.com/internal/api"
	"quantforge.com/internal/config"
	"quantforge.com/internal/engine"
	"quantforge.com/internal/execution"
	"quantforge.com/internal/infra"
	"quantforge.com/internal/service"
)

func main() {
	// 1. 加载配置
	cfg := config.LoadConfig()

	// 2. 初始化基础设施
	// Postgres
	pg, err := infra.NewPostgresClient(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Redis
	rdb := infra.NewRedisClient(cfg.Redis)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}

	jobQueue := infra.NewRedisJobQueue(rdb)
	statusCache := infra.NewRedisStatusCache(rdb)

	// 3. 初始化 WebSocket 管理器
	wsHub := infra.NewWsHub()

	// 4. 初始化执行引擎客户端与业务服务
	execClient := execution.NewClient(cfg.Engine)

	strategySvc := service.NewStrategyService(pg.DB)
	datasetSvc := service.NewDatasetService(pg.DB)
	backtestSvc := service.NewBacktestService(
		pg.DB,
		execClient,
		jobQueue,
		statusCache,
		wsHub,
		time.Duration(cfg.Engine.TimeoutSeconds)*time.Second,
	)

	// 5. 初始化并启动引擎（WebSocket Hub 和任务工作循环）
	eng := engine.NewEngine(cfg, wsHub, jobQueue, backtestSvc, execClient)
	eng.Start()

	// 6. 设置 Fiber 服务器并注册路由
	app := api.NewServer(cfg)
	router := api.NewRouter(app, cfg, pg.DB, wsHub, strategySvc, datasetSvc, backtestSvc, execClient)
	router.RegisterRoutes()

	// 7. 启动服务器
	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := app.Listen(cfg.Server.Port); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
