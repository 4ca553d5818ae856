package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/verikey/verikey-server/internal/api/http/dto"
	"github.com/verikey/verikey-server/internal/ratelimit"
	"github.com/verikey/verikey-server/internal/sse"
	"github.com/verikey/verikey-server/internal/verification"
)

// VerifyHandler exposes the batch verification endpoint. The response
// is a server-sent event stream: tagged per-index events are flushed as
// each pair progresses.
type VerifyHandler struct {
	svc     *verification.Service
	limiter *ratelimit.Limiter
}

func NewVerifyHandler(svc *verification.Service, limiter *ratelimit.Limiter) *VerifyHandler {
	return &VerifyHandler{svc: svc, limiter: limiter}
}

func (h *VerifyHandler) Verify(c *gin.Context) {
	if ok, retryAfter := h.limiter.Allow(c.ClientIP()); !ok {
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":      "too many requests",
			"retryAfter": retryAfter,
		})
		return
	}

	var req dto.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	// Shape errors are rejected before the stream is opened so the
	// client still gets a plain JSON status code.
	if len(req.Links) == 0 || len(req.Links) != len(req.CardKeys) {
		c.JSON(http.StatusBadRequest, gin.H{"error": verification.ErrBatchMismatch.Error()})
		return
	}
	if len(req.Links) > verification.MaxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": verification.ErrBatchTooLarge.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	enc := sse.NewEncoder(c.Writer)
	emit := func(event string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if err := enc.Write(sse.Event{Event: event, Data: string(data)}); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	if err := h.svc.ProcessBatch(c.Request.Context(), req.Links, req.CardKeys, emit); err != nil {
		slog.Error("Batch verification aborted", "error", err, "client_ip", c.ClientIP())
	}
}
