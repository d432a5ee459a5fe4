package usecase

import (
	"context"
	"fmt"
	"time"

	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"
	userrepo "github.com/landovsky/gmail-assistant-sub002/internal/user/repository"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"

	"golang.org/x/oauth2"
)

// Mailboxes opens the mailbox of a user.
type Mailboxes interface {
	ForUser(ctx context.Context, user *userdomain.User) (gmail.Mailbox, error)
}

// MailboxesFunc adapts a function to Mailboxes.
type MailboxesFunc func(ctx context.Context, user *userdomain.User) (gmail.Mailbox, error)

func (f MailboxesFunc) ForUser(ctx context.Context, user *userdomain.User) (gmail.Mailbox, error) {
	return f(ctx, user)
}

type gmailMailboxes struct {
	gmail *gmail.Service
	users userrepo.UserRepository
}

// NewGmailMailboxes opens Gmail API clients from the stored OAuth tokens.
// Refreshed tokens are written back to the user row.
func NewGmailMailboxes(svc *gmail.Service, users userrepo.UserRepository) Mailboxes {
	return &gmailMailboxes{gmail: svc, users: users}
}

func (m *gmailMailboxes) ForUser(ctx context.Context, user *userdomain.User) (gmail.Mailbox, error) {
	if user.RefreshToken == "" && user.AccessToken == "" {
		return nil, fmt.Errorf("user %s has no Gmail credentials", user.Email)
	}
	creds := gmail.Credentials{
		AccessToken:  user.AccessToken,
		RefreshToken: user.RefreshToken,
	}
	if user.TokenExpiry != nil {
		creds.Expiry = *user.TokenExpiry
	}

	userID := user.ID
	onTokenRefresh := func(token *oauth2.Token) error {
		refresh := token.RefreshToken
		if refresh == "" {
			refresh = user.RefreshToken
		}
		// The refresh may happen long after the request that opened the
		// client, so it does not inherit its context.
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return m.users.UpdateTokens(saveCtx, userID, token.AccessToken, refresh, token.Expiry)
	}

	client, err := m.gmail.ForUser(ctx, creds, onTokenRefresh)
	if err != nil {
		return nil, fmt.Errorf("failed to open mailbox of %s: %w", user.Email, err)
	}
	return client, nil
}
