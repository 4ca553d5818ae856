package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/verikey/verikey-server/internal/admin"
	internalhttp "github.com/verikey/verikey-server/internal/api/http"
	"github.com/verikey/verikey-server/internal/cardkey"
	"github.com/verikey/verikey-server/internal/db"
	"github.com/verikey/verikey-server/internal/ratelimit"
	"github.com/verikey/verikey-server/internal/stats"
	"github.com/verikey/verikey-server/internal/upstream"
	"github.com/verikey/verikey-server/internal/verification"
)

const (
	verifyLimit     = 10
	loginLimit      = 5
	limiterInterval = time.Minute
)

var AppVersion string

func main() {
	InitConfig()

	slog.Info("VeriKey Server", "version", AppVersion)

	if err := db.RunMigrations(config.Database.Url, config.Database.Schema); err != nil {
		slog.Error("Migration failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := db.InitDB(ctx, config.Database.Url, config.Database.Schema)
	if err != nil {
		slog.Error("Database connection failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	keyStore := cardkey.NewStore(pool)
	statsStore := stats.NewStore(pool)
	auditLog := admin.NewAuditLog(pool)
	jobStore := verification.NewPostgresJobStore(pool, keyStore)
	upstreamClient := upstream.NewClient(config.Upstream)
	verifySvc := verification.NewService(jobStore, keyStore, statsStore, upstreamClient, config.Verify)

	services := &internalhttp.Services{
		Verification:  verifySvc,
		Jobs:          jobStore,
		Keys:          keyStore,
		Stats:         statsStore,
		Audit:         auditLog,
		Admin:         config.Admin,
		VerifyLimiter: ratelimit.NewLimiter(verifyLimit, limiterInterval),
		LoginLimiter:  ratelimit.NewLimiter(loginLimit, limiterInterval),
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"PUT", "PATCH", "GET", "POST", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(gin.Recovery())
	internalhttp.SetupRoute(engine, services)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", config.Http.Port),
		Handler: engine,
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		slog.Error("Server error", "error", err)
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig)
	}

	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped")
	}

	slog.Info("Shutdown complete")
}
