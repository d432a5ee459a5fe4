package delivery

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	jobdomain "github.com/landovsky/gmail-assistant-sub002/internal/job/domain"
	jobrepo "github.com/landovsky/gmail-assistant-sub002/internal/job/repository"
	userrepo "github.com/landovsky/gmail-assistant-sub002/internal/user/repository"

	"github.com/gin-gonic/gin"
)

// ErrMalformed marks a notification that can never be processed.
var ErrMalformed = errors.New("malformed notification")

// GmailNotification is the payload Gmail publishes on every mailbox change.
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// PushEnvelope is the body of a Pub/Sub push request.
type PushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// NotificationHandler turns Gmail notifications into sync jobs. It serves
// both the push webhook and the pull subscription.
type NotificationHandler struct {
	users userrepo.UserRepository
	jobs  jobrepo.JobRepository

	mu sync.Mutex
	// Deduplication: last historyId per user to skip replayed notifications
	lastHistoryID map[string]uint64
}

// NewNotificationHandler creates a notification handler.
func NewNotificationHandler(users userrepo.UserRepository, jobs jobrepo.JobRepository) *NotificationHandler {
	return &NotificationHandler{
		users:         users,
		jobs:          jobs,
		lastHistoryID: make(map[string]uint64),
	}
}

// Handle processes one decoded notification. It reports whether a sync
// job was queued; unknown users and replays are not errors.
func (h *NotificationHandler) Handle(ctx context.Context, data []byte) (bool, error) {
	var n GmailNotification
	if err := json.Unmarshal(data, &n); err != nil {
		return false, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if n.EmailAddress == "" {
		return false, fmt.Errorf("%w: missing emailAddress", ErrMalformed)
	}

	user, err := h.users.FindByEmail(ctx, n.EmailAddress)
	if err != nil {
		return false, fmt.Errorf("failed to find user %s: %w", n.EmailAddress, err)
	}
	if user == nil || !user.IsActive {
		log.Printf("[Webhook] No active user for %s, ignoring notification", n.EmailAddress)
		return false, nil
	}

	if !h.advance(user.ID, n.HistoryID) {
		log.Printf("[Webhook] Skipping replayed notification for user %s (historyId %d)", user.ID, n.HistoryID)
		return false, nil
	}

	if _, err := h.jobs.Enqueue(ctx, jobdomain.TypeSync, user.ID, jobdomain.SyncPayload{}, 0); err != nil {
		h.forget(user.ID, n.HistoryID)
		return false, fmt.Errorf("failed to enqueue sync: %w", err)
	}
	log.Printf("[Webhook] Queued sync for %s (historyId=%d)", n.EmailAddress, n.HistoryID)
	return true, nil
}

func (h *NotificationHandler) advance(userID string, historyID uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := h.lastHistoryID[userID]; ok && historyID != 0 && historyID <= last {
		return false
	}
	if historyID > h.lastHistoryID[userID] {
		h.lastHistoryID[userID] = historyID
	}
	return true
}

func (h *NotificationHandler) forget(userID string, historyID uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastHistoryID[userID] == historyID {
		delete(h.lastHistoryID, userID)
	}
}

// decodeData accepts standard and URL-safe base64, padded or not.
func decodeData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(data); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("%w: message.data is not base64", ErrMalformed)
}

// Webhook handles POST /api/webhook/gmail.
func (h *NotificationHandler) Webhook(c *gin.Context) {
	var env PushEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid push envelope"})
		return
	}
	if env.Message.Data == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty notification data"})
		return
	}
	data, err := decodeData(env.Message.Data)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	queued, err := h.Handle(c.Request.Context(), data)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		log.Printf("[Webhook] Failed to process notification: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process notification"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "queued": queued})
}
