package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	agentDelivery "github.com/landovsky/gmail-assistant-sub002/internal/agent/delivery"
	authUsecase "github.com/landovsky/gmail-assistant-sub002/internal/auth/usecase"
	emailDelivery "github.com/landovsky/gmail-assistant-sub002/internal/email/delivery"
	jobDelivery "github.com/landovsky/gmail-assistant-sub002/internal/job/delivery"
	llmcallDelivery "github.com/landovsky/gmail-assistant-sub002/internal/llmcall/delivery"
	syncDelivery "github.com/landovsky/gmail-assistant-sub002/internal/sync/delivery"

	"github.com/gin-gonic/gin"
)

// Handler bundles the HTTP handlers of the service.
type Handler struct {
	authUsecase     authUsecase.AuthUsecase
	webhookHandler  *syncDelivery.NotificationHandler
	emailHandler    *emailDelivery.EmailHandler
	jobHandler      *jobDelivery.JobHandler
	agentHandler    *agentDelivery.AgentHandler
	llmCallHandler  *llmcallDelivery.LLMCallHandler
	settingsHandler *SettingsHandler
}

func NewHandler(
	authUc authUsecase.AuthUsecase,
	webhookHandler *syncDelivery.NotificationHandler,
	emailHandler *emailDelivery.EmailHandler,
	jobHandler *jobDelivery.JobHandler,
	agentHandler *agentDelivery.AgentHandler,
	llmCallHandler *llmcallDelivery.LLMCallHandler,
	settingsHandler *SettingsHandler,
) *Handler {
	return &Handler{
		authUsecase:     authUc,
		webhookHandler:  webhookHandler,
		emailHandler:    emailHandler,
		jobHandler:      jobHandler,
		agentHandler:    agentHandler,
		llmCallHandler:  llmCallHandler,
		settingsHandler: settingsHandler,
	}
}

// Router builds the gin engine with CORS and every route.
func (h *Handler) Router() *gin.Engine {
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	SetupRoutes(r, h)
	return r
}

// Start serves HTTP on addr until ctx is cancelled.
func (h *Handler) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Println("Server shutting down")
	return srv.Shutdown(shutdownCtx)
}
