package delivery

import (
	"net/http"
	"strconv"
	"time"

	llmcallrepo "github.com/landovsky/gmail-assistant-sub002/internal/llmcall/repository"

	"github.com/gin-gonic/gin"
)

type LLMCallHandler struct {
	calls llmcallrepo.LLMCallRepository
}

func NewLLMCallHandler(calls llmcallrepo.LLMCallRepository) *LLMCallHandler {
	return &LLMCallHandler{calls: calls}
}

// GetStats handles GET /api/llm/stats?hours=24
func (h *LLMCallHandler) GetStats(c *gin.Context) {
	hours := 24
	if hoursStr := c.Query("hours"); hoursStr != "" {
		if parsed, err := strconv.Atoi(hoursStr); err == nil && parsed > 0 {
			hours = parsed
		}
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	stats, err := h.calls.Stats(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"since": since, "stats": stats})
}
