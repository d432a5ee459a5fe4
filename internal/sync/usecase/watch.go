package usecase

import (
	"context"
	"fmt"
	"log"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
)

// RenewWatch (re)subscribes the mailbox to push notifications on topic for
// new inbox mail and for the labels users apply by hand.
func (e *Engine) RenewWatch(ctx context.Context, mb gmail.Mailbox, userID, topic string) error {
	if topic == "" {
		return nil
	}
	labels, err := e.labels.LabelMap(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to load labels: %w", err)
	}
	watched := append([]string{"INBOX"}, labels.IDs(
		emaildomain.LabelNeedsResponse,
		emaildomain.LabelRework,
		emaildomain.LabelDone,
	)...)

	resp, err := mb.Watch(ctx, topic, watched)
	if err != nil {
		return fmt.Errorf("failed to renew watch: %w", err)
	}
	if err := e.states.SetWatch(ctx, userID, topic, resp.Expiration); err != nil {
		return fmt.Errorf("failed to store watch: %w", err)
	}
	log.Printf("[Sync] Watch renewed for user %s (expires %s)", userID, resp.Expiration.Format("2006-01-02 15:04"))
	return nil
}
