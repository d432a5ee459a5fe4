package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	emaildomain "github.com/landovsky/gmail-assistant-sub002/internal/email/domain"
	emailrepo "github.com/landovsky/gmail-assistant-sub002/internal/email/repository"
	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
)

var errNoEnv = errors.New("no mailbox in this run")

type searchInput struct {
	Query      string `json:"query"`
	MaxResults int64  `json:"max_results"`
}

type searchHit struct {
	ThreadID string    `json:"thread_id"`
	From     string    `json:"from"`
	Subject  string    `json:"subject"`
	Snippet  string    `json:"snippet"`
	Date     time.Time `json:"date"`
}

type threadInput struct {
	ThreadID string `json:"thread_id"`
}

type threadMessage struct {
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Date    time.Time `json:"date"`
	Body    string    `json:"body"`
}

type threadOutput struct {
	ThreadID string          `json:"thread_id"`
	Messages []threadMessage `json:"messages"`
}

type draftInput struct {
	Body string `json:"body"`
}

type draftOutput struct {
	DraftID string `json:"draft_id"`
}

type labelInput struct {
	Label string `json:"label"`
}

type labelOutput struct {
	Applied string `json:"applied"`
}

const maxToolBody = 2000

// MailboxTools returns the tools that act on the run's mailbox thread.
func MailboxTools(labels emailrepo.LabelMappingRepository) []Tool {
	labelEnum := make([]string, 0, len(emaildomain.LabelKeys))
	for _, k := range emaildomain.LabelKeys {
		labelEnum = append(labelEnum, string(k))
	}
	enum, _ := json.Marshal(labelEnum)

	return []Tool{
		NewTool("search_mailbox",
			"Search the user's mailbox with a Gmail query. Returns matching messages.",
			json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Gmail search query"},"max_results":{"type":"integer","description":"Maximum results (default 5)"}},"required":["query"]}`),
			func(ctx context.Context, in searchInput) ([]searchHit, error) {
				env := EnvFrom(ctx)
				if env == nil || env.Mailbox == nil {
					return nil, errNoEnv
				}
				if in.MaxResults <= 0 || in.MaxResults > 20 {
					in.MaxResults = 5
				}
				msgs, err := env.Mailbox.Search(ctx, in.Query, in.MaxResults)
				if err != nil {
					return nil, err
				}
				hits := make([]searchHit, 0, len(msgs))
				for _, m := range msgs {
					hits = append(hits, searchHit{ThreadID: m.ThreadID, From: m.SenderEmail, Subject: m.Subject, Snippet: m.Snippet, Date: m.InternalDate})
				}
				return hits, nil
			}),

		NewTool("get_thread",
			"Read the messages of a thread. Defaults to the thread being handled.",
			json.RawMessage(`{"type":"object","properties":{"thread_id":{"type":"string"}}}`),
			func(ctx context.Context, in threadInput) (*threadOutput, error) {
				env := EnvFrom(ctx)
				if env == nil || env.Mailbox == nil {
					return nil, errNoEnv
				}
				id := in.ThreadID
				if id == "" {
					id = env.ThreadID
				}
				t, err := env.Mailbox.GetThread(ctx, id)
				if err != nil {
					return nil, err
				}
				out := &threadOutput{ThreadID: t.ID}
				for _, m := range t.Messages {
					body := []rune(m.Body)
					if len(body) > maxToolBody {
						body = body[:maxToolBody]
					}
					out.Messages = append(out.Messages, threadMessage{From: m.SenderEmail, Subject: m.Subject, Date: m.InternalDate, Body: string(body)})
				}
				return out, nil
			}),

		NewTool("create_draft",
			"Create a reply draft in the thread being handled. The user reviews it before sending.",
			json.RawMessage(`{"type":"object","properties":{"body":{"type":"string","description":"Plain-text reply body"}},"required":["body"]}`),
			func(ctx context.Context, in draftInput) (*draftOutput, error) {
				env := EnvFrom(ctx)
				if env == nil || env.Mailbox == nil {
					return nil, errNoEnv
				}
				if in.Body == "" {
					return nil, errors.New("body is required")
				}
				t, err := env.Mailbox.GetThread(ctx, env.ThreadID)
				if err != nil {
					return nil, err
				}
				latest := t.Latest()
				if latest == nil {
					return nil, fmt.Errorf("thread %s is empty", env.ThreadID)
				}
				id, err := env.Mailbox.CreateDraft(ctx, gmail.DraftInput{
					ThreadID:   t.ID,
					To:         latest.SenderEmail,
					Subject:    latest.Subject,
					Body:       in.Body,
					InReplyTo:  latest.Header("Message-ID"),
					References: latest.Header("References"),
				})
				if err != nil {
					return nil, err
				}
				return &draftOutput{DraftID: id}, nil
			}),

		NewTool("apply_label",
			"Apply one of the assistant's workflow labels to the thread being handled.",
			json.RawMessage(`{"type":"object","properties":{"label":{"type":"string","enum":`+string(enum)+`}},"required":["label"]}`),
			func(ctx context.Context, in labelInput) (*labelOutput, error) {
				env := EnvFrom(ctx)
				if env == nil || env.Mailbox == nil {
					return nil, errNoEnv
				}
				key := emaildomain.LabelKey(in.Label)
				if !key.Valid() {
					return nil, fmt.Errorf("unknown label %q", in.Label)
				}
				m, err := labels.LabelMap(ctx, env.UserID)
				if err != nil {
					return nil, err
				}
				id := m.ID(key)
				if id == "" {
					return nil, fmt.Errorf("label %q is not set up for this user", in.Label)
				}
				t, err := env.Mailbox.GetThread(ctx, env.ThreadID)
				if err != nil {
					return nil, err
				}
				if err := env.Mailbox.ModifyLabels(ctx, t.MessageIDs(), []string{id}, nil); err != nil {
					return nil, err
				}
				return &labelOutput{Applied: in.Label}, nil
			}),
	}
}
