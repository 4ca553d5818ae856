package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/verikey/verikey-server/internal/admin"
	"github.com/verikey/verikey-server/internal/api/http/dto"
	"github.com/verikey/verikey-server/internal/api/http/middleware"
	"github.com/verikey/verikey-server/internal/ratelimit"
)

// AdminAuthHandler issues and clears admin session tokens. Login
// attempts share a dedicated, tighter rate limit window.
type AdminAuthHandler struct {
	cfg     admin.Config
	limiter *ratelimit.Limiter
	audit   *admin.AuditLog
}

func NewAdminAuthHandler(cfg admin.Config, limiter *ratelimit.Limiter, audit *admin.AuditLog) *AdminAuthHandler {
	return &AdminAuthHandler{cfg: cfg, limiter: limiter, audit: audit}
}

func (h *AdminAuthHandler) Login(c *gin.Context) {
	if ok, retryAfter := h.limiter.Allow(c.ClientIP()); !ok {
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":      "too many login attempts",
			"retryAfter": retryAfter,
		})
		return
	}

	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password is required"})
		return
	}

	if !admin.VerifyPassword(h.cfg.Password, req.Password) {
		h.audit.Record(c.Request.Context(), "login_failed", "", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid password"})
		return
	}

	token, err := admin.GenerateToken(h.cfg)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.SetCookie(middleware.SessionCookie, token, int(h.cfg.TTL().Seconds()), "/", "", false, true)
	h.audit.Record(c.Request.Context(), "login", "", c.ClientIP())
	c.JSON(http.StatusOK, dto.AdminLoginResponse{Success: true, Token: token})
}

func (h *AdminAuthHandler) Logout(c *gin.Context) {
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
