package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verikey/verikey-server/internal/admin"
	"github.com/verikey/verikey-server/internal/api/http/dto"
	"github.com/verikey/verikey-server/internal/cardkey"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 200
)

// AdminKeysHandler is the card-key management surface: listing,
// provisioning, revocation and deletion.
type AdminKeysHandler struct {
	keys  *cardkey.Store
	audit *admin.AuditLog
}

func NewAdminKeysHandler(keys *cardkey.Store, audit *admin.AuditLog) *AdminKeysHandler {
	return &AdminKeysHandler{keys: keys, audit: audit}
}

func pagination(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageLimit)))
	if limit < 1 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}

func (h *AdminKeysHandler) List(c *gin.Context) {
	page, limit := pagination(c)
	filter := cardkey.ListFilter{
		Status: c.Query("status"),
		Query:  c.Query("q"),
	}

	keys, total, err := h.keys.List(c.Request.Context(), filter, limit, (page-1)*limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list card keys"})
		return
	}

	resp := dto.ListKeysResponse{Keys: keys, Total: total, Page: page, Limit: limit}
	if c.Query("stats") == "true" {
		counts, err := h.keys.CountByStatus(c.Request.Context(), cardkey.ListFilter{Query: filter.Query})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count card keys"})
			return
		}
		resp.Stats = counts
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AdminKeysHandler) Generate(c *gin.Context) {
	var req dto.GenerateKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	opts := cardkey.GenerateOptions{
		Note:    req.Note,
		BatchNo: req.BatchNo,
		MaxUses: req.MaxUses,
	}
	if req.ExpiresAt != "" {
		expires, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "expiresAt must be RFC 3339"})
			return
		}
		opts.ExpiresAt = &expires
	}

	codes, err := h.keys.Generate(c.Request.Context(), req.Count, opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate card keys"})
		return
	}

	h.audit.Record(c.Request.Context(), "generate_keys",
		strconv.Itoa(len(codes))+" keys, batch "+req.BatchNo, c.ClientIP())
	c.JSON(http.StatusOK, dto.GenerateKeysResponse{Codes: codes})
}

// Update applies an admin action to one key: revoke, restore, or note.
func (h *AdminKeysHandler) Update(c *gin.Context) {
	code := c.Param("code")
	var req dto.KeyActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var err error
	switch req.Action {
	case "revoke":
		err = h.keys.Revoke(c.Request.Context(), code)
	case "restore":
		err = h.keys.Restore(c.Request.Context(), code)
	case "note":
		err = h.keys.UpdateNote(c.Request.Context(), code, req.Note)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
		return
	}

	switch {
	case errors.Is(err, cardkey.ErrKeyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update card key"})
	default:
		h.audit.Record(c.Request.Context(), "key_"+req.Action, code, c.ClientIP())
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

func (h *AdminKeysHandler) Delete(c *gin.Context) {
	code := c.Param("code")
	err := h.keys.Delete(c.Request.Context(), code)
	switch {
	case errors.Is(err, cardkey.ErrKeyNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, cardkey.ErrKeyReferenced):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete card key"})
	default:
		h.audit.Record(c.Request.Context(), "key_delete", code, c.ClientIP())
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
