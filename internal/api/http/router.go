package http

import (
	"github.com/gin-gonic/gin"

	"github.com/verikey/verikey-server/internal/admin"
	"github.com/verikey/verikey-server/internal/api/http/handler"
	"github.com/verikey/verikey-server/internal/api/http/middleware"
	"github.com/verikey/verikey-server/internal/cardkey"
	"github.com/verikey/verikey-server/internal/ratelimit"
	"github.com/verikey/verikey-server/internal/stats"
	"github.com/verikey/verikey-server/internal/verification"
)

type Services struct {
	Verification  *verification.Service
	Jobs          verification.JobStore
	Keys          *cardkey.Store
	Stats         *stats.Store
	Audit         *admin.AuditLog
	Admin         admin.Config
	VerifyLimiter *ratelimit.Limiter
	LoginLimiter  *ratelimit.Limiter
}

func SetupRoute(engine *gin.Engine, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	verifyHandler := handler.NewVerifyHandler(srvs.Verification, srvs.VerifyLimiter)
	queryHandler := handler.NewQueryHandler(srvs.Jobs)
	statsHandler := handler.NewStatsHandler(srvs.Stats)

	api := engine.Group("/api")
	api.POST("/verify", verifyHandler.Verify)
	api.POST("/query", queryHandler.Query)
	api.GET("/stats", statsHandler.Today)

	authHandler := handler.NewAdminAuthHandler(srvs.Admin, srvs.LoginLimiter, srvs.Audit)
	api.POST("/admin/login", authHandler.Login)
	api.POST("/admin/logout", authHandler.Logout)

	keysHandler := handler.NewAdminKeysHandler(srvs.Keys, srvs.Audit)
	exportHandler := handler.NewAdminExportHandler(srvs.Keys, srvs.Audit)
	logsHandler := handler.NewAdminLogsHandler(srvs.Audit)

	adminGroup := api.Group("/admin", middleware.AdminAuth(srvs.Admin.JWTSecret))
	adminGroup.GET("/cardkeys", keysHandler.List)
	adminGroup.POST("/cardkeys", keysHandler.Generate)
	adminGroup.PATCH("/cardkeys/:code", keysHandler.Update)
	adminGroup.DELETE("/cardkeys/:code", keysHandler.Delete)
	adminGroup.GET("/export", exportHandler.Export)
	adminGroup.GET("/logs", logsHandler.List)
}
