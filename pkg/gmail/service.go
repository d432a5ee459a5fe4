package gmail

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/landovsky/gmail-assistant-sub002/pkg/retry"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// RequestTimeout bounds every provider HTTP call.
const RequestTimeout = 60 * time.Second

// TokenUpdateFunc is called when the oauth2 token source refreshes a token.
type TokenUpdateFunc func(token *oauth2.Token) error

// Credentials are the stored OAuth tokens of one mailbox owner.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Service builds per-user Gmail clients from the application's OAuth client.
type Service struct {
	clientID     string
	clientSecret string
	policy       *retry.Policy
}

type notifyTokenSource struct {
	src      oauth2.TokenSource
	current  *oauth2.Token
	callback TokenUpdateFunc
}

func (s *notifyTokenSource) Token() (*oauth2.Token, error) {
	t, err := s.src.Token()
	if err != nil {
		return nil, err
	}
	if s.callback != nil && s.current.AccessToken != t.AccessToken {
		s.current = t
		if err := s.callback(t); err != nil {
			log.Printf("[Gmail] Failed to persist refreshed token: %v", err)
		}
	}
	return t, nil
}

// NewService creates a Service for the given OAuth client.
func NewService(clientID, clientSecret string) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		policy:       retry.DefaultPolicy(),
	}
}

// ForUser creates a Gmail client acting as the owner of creds.
func (s *Service) ForUser(ctx context.Context, creds Credentials, onTokenRefresh TokenUpdateFunc) (*UserClient, error) {
	token := &oauth2.Token{
		AccessToken:  creds.AccessToken,
		RefreshToken: creds.RefreshToken,
		TokenType:    "Bearer",
		Expiry:       creds.Expiry,
	}

	config := &oauth2.Config{
		ClientID:     s.clientID,
		ClientSecret: s.clientSecret,
		Endpoint:     google.Endpoint,
	}

	// Token refreshes use the same bounded HTTP client as API calls.
	refreshCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: RequestTimeout})
	wrappedSource := &notifyTokenSource{
		src:      config.TokenSource(refreshCtx, token),
		current:  token,
		callback: onTokenRefresh,
	}

	httpClient := oauth2.NewClient(refreshCtx, wrappedSource)
	httpClient.Timeout = RequestTimeout

	srv, err := gmailapi.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	return NewUserClient(srv, s.policy), nil
}

// NewUserClient wraps an already configured Gmail API service.
func NewUserClient(srv *gmailapi.Service, policy *retry.Policy) *UserClient {
	if policy == nil {
		policy = retry.DefaultPolicy()
	}
	return &UserClient{srv: srv, policy: policy}
}
