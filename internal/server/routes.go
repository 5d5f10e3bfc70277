package server

import (
	"github.com/labstack/echo/v4"

	"example.com/ai-plan-importer/backend/internal/handlers"
)

func registerRoutes(
	e *echo.Echo,
	authHandler *handlers.AuthHandler,
	importHandler *handlers.ImportHandler,
	planHandler *handlers.PlanHandler,
	catalogHandler *handlers.CatalogHandler,
	creditHandler *handlers.CreditHandler,
	statsHandler *handlers.StatsHandler,
	notificationHandler *handlers.NotificationHandler,
	adminHandler *handlers.AdminHandler,
	authMiddleware echo.MiddlewareFunc,
	adminMiddleware echo.MiddlewareFunc,
	authRateLimiter echo.MiddlewareFunc,
	importRateLimiter echo.MiddlewareFunc,
) {
	e.GET("/health", handlers.Health)

	api := e.Group("/api/v1")
	authGroup := api.Group("/auth", authRateLimiter)

	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.POST("/logout", authHandler.Logout)
	authGroup.GET("/me", authHandler.Me, authMiddleware)

	imports := api.Group("/imports", authMiddleware)
	imports.POST("", importHandler.Create, importRateLimiter)
	imports.GET("", importHandler.List)
	imports.GET("/:id", importHandler.Get)
	imports.POST("/:id/review", importHandler.Review)
	imports.POST("/:id/cancel", importHandler.Cancel)

	plans := api.Group("/plans", authMiddleware)
	plans.GET("", planHandler.List)
	plans.GET("/:id", planHandler.Get)
	plans.GET("/:id/export", planHandler.Export)
	plans.POST("/:id/duplicate", planHandler.Duplicate)
	plans.DELETE("/:id", planHandler.Delete)

	catalog := api.Group("/catalog", authMiddleware)
	catalog.GET("", catalogHandler.Search)
	catalog.GET("/pending", catalogHandler.Pending)
	catalog.POST("/:id/approve", catalogHandler.Approve)

	credits := api.Group("/credits", authMiddleware)
	credits.GET("", creditHandler.Balance)
	credits.GET("/history", creditHandler.History)

	stats := api.Group("/stats", authMiddleware)
	stats.GET("/overview", statsHandler.Overview)
	stats.GET("/import-activity", statsHandler.ImportActivity)
	stats.GET("/day-totals", statsHandler.DayTotals)

	api.GET("/events", notificationHandler.Stream, authMiddleware)

	admin := api.Group("/admin", authMiddleware, adminMiddleware)
	admin.GET("/users", adminHandler.ListUsers)
	admin.GET("/ai-requests", adminHandler.ListAIRequests)
	admin.GET("/usage", adminHandler.Usage)
}
