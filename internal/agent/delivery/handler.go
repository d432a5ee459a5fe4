package delivery

import (
	"net/http"
	"strconv"

	agentrepo "github.com/landovsky/gmail-assistant-sub002/internal/agent/repository"
	authdelivery "github.com/landovsky/gmail-assistant-sub002/internal/auth/delivery"

	"github.com/gin-gonic/gin"
)

type AgentHandler struct {
	runs agentrepo.AgentRunRepository
}

func NewAgentHandler(runs agentrepo.AgentRunRepository) *AgentHandler {
	return &AgentHandler{runs: runs}
}

// GetRuns handles GET /api/agent/runs?limit=
func (h *AgentHandler) GetRuns(c *gin.Context) {
	user := authdelivery.CurrentUser(c)

	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), user.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// GetRun handles GET /api/agent/runs/:id
func (h *AgentHandler) GetRun(c *gin.Context) {
	user := authdelivery.CurrentUser(c)

	run, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if run == nil || run.UserID != user.ID {
		c.JSON(http.StatusNotFound, gin.H{"error": "agent run not found"})
		return
	}

	c.JSON(http.StatusOK, run)
}
