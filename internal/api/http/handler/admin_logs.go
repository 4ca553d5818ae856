package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verikey/verikey-server/internal/admin"
	"github.com/verikey/verikey-server/internal/api/http/dto"
)

type AdminLogsHandler struct {
	audit *admin.AuditLog
}

func NewAdminLogsHandler(audit *admin.AuditLog) *AdminLogsHandler {
	return &AdminLogsHandler{audit: audit}
}

func (h *AdminLogsHandler) List(c *gin.Context) {
	page, limit := pagination(c)
	logs, total, err := h.audit.List(c.Request.Context(), limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit logs"})
		return
	}
	c.JSON(http.StatusOK, dto.ListLogsResponse{Logs: logs, Total: total, Page: page, Limit: limit})
}
