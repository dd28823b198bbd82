package api

import (
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"quantforge.com/internal/api/middleware"
	"quantforge.com/internal/auth"
	"quantforge.com/internal/config"
	"quantforge.com/internal/domain"
	"quantforge.com/internal/infra"
)

// Router 负责注册所有路由
type Router struct {
	app    *fiber.App
	cfg    *config.Config
	db     *gorm.DB
	hub    *infra.WsHub
	router fiber.Router // /api group

	strategySvc domain.StrategyService
	datasetSvc  domain.DatasetService
	backtestSvc domain.BacktestService
	engine      domain.EngineClient
}

func NewRouter(
	app *fiber.App,
	cfg *config.Config,
	db *gorm.DB,
	hub *infra.WsHub,
	strategySvc domain.StrategyService,
	datasetSvc domain.DatasetService,
	backtestSvc domain.BacktestService,
	engine domain.EngineClient,
) *Router {
	return &Router{
		app:         app,
		cfg:         cfg,
		db:          db,
		hub:         hub,
		strategySvc: strategySvc,
		datasetSvc:  datasetSvc,
		backtestSvc: backtestSvc,
		engine:      engine,
	}
}

// RegisterRoutes 注册所有业务路由
func (r *Router) RegisterRoutes() {
	// 1. 初始化鉴权
	enforcer, err := auth.InitCasbin(r.db)
	if err != nil {
		log.Fatalf("Failed to initialize Casbin: %v", err)
	}

	// 2. 初始化各个 Handler
	authHandler := NewAuthHandler(r.db, r.cfg)
	strategyHandler := NewStrategyHandler(r.strategySvc)
	datasetHandler := NewDatasetHandler(r.datasetSvc, r.cfg.Upload)
	backtestHandler := NewBacktestHandler(r.backtestSvc, r.engine)

	// 3. 注册 WebSocket 路由 (token 通过 query 参数鉴权)
	InitWebsocket(r.app, r.hub, r.cfg.Auth.JWTSecret)

	// 4. 注册公开路由 (Public)
	r.app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":  "ok",
			"message": "Service is healthy",
		})
	})

	r.app.Post("/auth/register", authHandler.Register)
	r.app.Post("/auth/login", authHandler.Login)
	authHandler.EnsureAdminUser()

	// 5. 注册受保护的 API 路由 (Protected /api)
	r.router = r.app.Group("/api")
	r.router.Use(middleware.CasbinMiddleware(enforcer, r.cfg.Auth.JWTSecret))

	r.registerAuthRoutes(authHandler)
	r.registerStrategyRoutes(strategyHandler)
	r.registerDatasetRoutes(datasetHandler)
	r.registerBacktestRoutes(backtestHandler)
}

func (r *Router) registerAuthRoutes(h *AuthHandler) {
	r.router.Get("/auth/me", h.GetMe)
	r.router.Post("/auth/logout", h.Logout)
}

func (r *Router) registerStrategyRoutes(h *StrategyHandler) {
	strategies := r.router.Group("/strategies")
	strategies.Post("/", h.CreateStrategy)
	strategies.Get("/", h.GetStrategies)
	strategies.Get("/:id", h.GetStrategy)
	strategies.Put("/:id", h.UpdateStrategy)
	strategies.Delete("/:id", h.DeleteStrategy)
}

func (r *Router) registerDatasetRoutes(h *DatasetHandler) {
	datasets := r.router.Group("/datasets")
	datasets.Post("/upload", h.UploadDataset)
	datasets.Get("/", h.GetDatasets)
	datasets.Get("/:id", h.GetDataset)
	datasets.Delete("/:id", h.DeleteDataset)
}

func (r *Router) registerBacktestRoutes(h *BacktestHandler) {
	backtests := r.router.Group("/backtests")
	backtests.Post("/", h.SubmitBacktest)
	backtests.Get("/", h.GetBacktests)
	backtests.Get("/:id", h.GetBacktest)
	backtests.Get("/:id/status", h.GetBacktestStatus)
	backtests.Delete("/:id", h.DeleteBacktest)

	r.router.Get("/engine/health", h.EngineHealth)
}
