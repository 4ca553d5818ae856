package handler

import (
	"encoding/csv"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verikey/verikey-server/internal/admin"
	"github.com/verikey/verikey-server/internal/cardkey"
)

// AdminExportHandler dumps card keys as CSV or JSON for offline
// bookkeeping.
type AdminExportHandler struct {
	keys  *cardkey.Store
	audit *admin.AuditLog
}

func NewAdminExportHandler(keys *cardkey.Store, audit *admin.AuditLog) *AdminExportHandler {
	return &AdminExportHandler{keys: keys, audit: audit}
}

func (h *AdminExportHandler) Export(c *gin.Context) {
	filter := cardkey.ListFilter{
		Status: c.Query("status"),
		Query:  c.Query("q"),
	}

	// limit 0 disables pagination: exports always cover the full
	// filtered set.
	keys, _, err := h.keys.List(c.Request.Context(), filter, 0, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to export card keys"})
		return
	}

	h.audit.Record(c.Request.Context(), "export_keys",
		strconv.Itoa(len(keys))+" keys", c.ClientIP())

	if c.DefaultQuery("format", "csv") == "json" {
		c.Header("Content-Disposition", `attachment; filename="cardkeys.json"`)
		c.JSON(http.StatusOK, keys)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="cardkeys.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write([]string{"code", "status", "max_uses", "used_count", "expires_at", "consumed_at", "note", "batch_no", "created_at"})
	for _, k := range keys {
		_ = w.Write([]string{
			k.Code,
			string(k.Status),
			strconv.Itoa(k.MaxUses),
			strconv.Itoa(k.UsedCount),
			formatTimePtr(k.ExpiresAt),
			formatTimePtr(k.ConsumedAt),
			derefString(k.Note),
			derefString(k.BatchNo),
			k.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	w.Flush()
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
