package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/verikey/verikey-server/internal/api/http/dto"
	"github.com/verikey/verikey-server/internal/stats"
)

type StatsHandler struct {
	stats *stats.Store
}

func NewStatsHandler(stats *stats.Store) *StatsHandler {
	return &StatsHandler{stats: stats}
}

func (h *StatsHandler) Today(c *gin.Context) {
	daily, err := h.stats.Today(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load stats"})
		return
	}
	c.JSON(http.StatusOK, dto.StatsResponse{
		TodaySuccess: daily.SuccessCount,
		TodayFail:    daily.FailCount,
		TodayTotal:   daily.TotalCount,
	})
}
