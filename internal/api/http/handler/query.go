package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/verikey/verikey-server/internal/api/http/dto"
	"github.com/verikey/verikey-server/internal/identifier"
	"github.com/verikey/verikey-server/internal/verification"
)

// QueryHandler looks up the latest job for a card key or verification
// link without touching key state.
type QueryHandler struct {
	jobs verification.JobStore
}

func NewQueryHandler(jobs verification.JobStore) *QueryHandler {
	return &QueryHandler{jobs: jobs}
}

func (h *QueryHandler) Query(c *gin.Context) {
	var req dto.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	verificationID := identifier.Extract(req.VerificationID)
	if req.CardKey == "" && verificationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cardKey or verificationId is required"})
		return
	}

	job, err := h.jobs.FindLatest(c.Request.Context(), req.CardKey, verificationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	if job == nil {
		c.JSON(http.StatusOK, dto.QueryResponse{Found: false})
		return
	}

	resp := dto.QueryResponse{
		Found:       true,
		Status:      string(job.Status),
		ResultURL:   job.ResultURL,
		CardKeyCode: job.CardKeyCode,
	}
	if job.FinishedAt != nil {
		resp.VerifiedAt = job.FinishedAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}
