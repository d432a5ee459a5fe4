package api

import (
	"net/http"

	"github.com/landovsky/gmail-assistant-sub002/internal/auth/delivery"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, h *Handler) {
	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		// Pub/Sub push endpoint
		api.POST("/webhook/gmail", h.webhookHandler.Webhook)

		protected := api.Group("")
		protected.Use(delivery.AuthMiddleware(h.authUsecase))
		{
			protected.POST("/sync", h.jobHandler.TriggerSync)
			protected.GET("/briefing", h.emailHandler.GetBriefing)
			protected.GET("/events", h.emailHandler.GetRecentEvents)
			protected.GET("/settings", h.settingsHandler.GetSettings)
			protected.PUT("/settings", h.settingsHandler.UpdateSettings)
			protected.GET("/llm/stats", h.llmCallHandler.GetStats)
		}

		// Email routes (protected)
		emails := api.Group("/emails")
		emails.Use(delivery.AuthMiddleware(h.authUsecase))
		{
			emails.GET("", h.emailHandler.GetEmails)
			emails.GET("/stats", h.emailHandler.GetStatusCounts)
			emails.GET("/:thread_id/debug", h.emailHandler.GetThreadDebug)
			emails.POST("/:thread_id/reclassify", h.emailHandler.Reclassify)
		}

		// Job queue routes (protected)
		jobs := api.Group("/jobs")
		jobs.Use(delivery.AuthMiddleware(h.authUsecase))
		{
			jobs.GET("", h.jobHandler.GetJobs)
			jobs.GET("/stats", h.jobHandler.GetStats)
			jobs.GET("/:id", h.jobHandler.GetJob)
		}

		// Agent routes (protected)
		agent := api.Group("/agent")
		agent.Use(delivery.AuthMiddleware(h.authUsecase))
		{
			agent.GET("/runs", h.agentHandler.GetRuns)
			agent.GET("/runs/:id", h.agentHandler.GetRun)
		}
	}
}
