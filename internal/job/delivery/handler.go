package delivery

import (
	"net/http"
	"strconv"

	authdelivery "github.com/landovsky/gmail-assistant-sub002/internal/auth/delivery"
	jobdomain "github.com/landovsky/gmail-assistant-sub002/internal/job/domain"
	jobrepo "github.com/landovsky/gmail-assistant-sub002/internal/job/repository"

	"github.com/gin-gonic/gin"
)

// JobHandler exposes the job queue for inspection and manual triggers.
type JobHandler struct {
	jobs jobrepo.JobRepository
}

func NewJobHandler(jobs jobrepo.JobRepository) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// GetStats handles GET /api/jobs/stats
func (h *JobHandler) GetStats(c *gin.Context) {
	stats, err := h.jobs.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// GetJobs handles GET /api/jobs?status=&limit=
func (h *JobHandler) GetJobs(c *gin.Context) {
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	status := jobdomain.Status(c.Query("status"))
	switch status {
	case "", jobdomain.StatusPending, jobdomain.StatusRunning, jobdomain.StatusCompleted, jobdomain.StatusFailed:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status"})
		return
	}

	jobs, err := h.jobs.ListRecent(c.Request.Context(), status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "limit": limit})
}

// GetJob handles GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// TriggerSync handles POST /api/sync?full=true for the authenticated user.
func (h *JobHandler) TriggerSync(c *gin.Context) {
	user := authdelivery.CurrentUser(c)
	full, _ := strconv.ParseBool(c.Query("full"))

	jobID, err := h.jobs.Enqueue(c.Request.Context(), jobdomain.TypeSync, user.ID, jobdomain.SyncPayload{ForceFull: full}, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID, "full": full})
}
