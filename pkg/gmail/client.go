package gmail

import (
	"context"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/landovsky/gmail-assistant-sub002/pkg/retry"

	gmailapi "google.golang.org/api/gmail/v1"
)

const me = "me"

// UserClient performs Gmail operations for one mailbox. Every call is retried
// on transient failures according to its retry policy.
type UserClient struct {
	srv    *gmailapi.Service
	policy *retry.Policy
}

var _ Mailbox = (*UserClient)(nil)

func (c *UserClient) do(ctx context.Context, op string, fn func() error) error {
	return c.policy.Do(ctx, op, func() retry.Outcome {
		return classify(op, fn())
	})
}

// GetMessage fetches a full message.
func (c *UserClient) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var msg *gmailapi.Message
	err := c.do(ctx, "messages.get", func() error {
		var err error
		msg, err = c.srv.Users.Messages.Get(me, messageID).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return convertMessage(msg), nil
}

// GetThread fetches a thread with all its messages.
func (c *UserClient) GetThread(ctx context.Context, threadID string) (*Thread, error) {
	var thread *gmailapi.Thread
	err := c.do(ctx, "threads.get", func() error {
		var err error
		thread, err = c.srv.Users.Threads.Get(me, threadID).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &Thread{ID: thread.Id, Messages: make([]*Message, 0, len(thread.Messages))}
	for _, m := range thread.Messages {
		out.Messages = append(out.Messages, convertMessage(m))
	}
	return out, nil
}

// Search runs a Gmail query and returns message metadata (sender, subject,
// snippet) for the matches, newest first.
func (c *UserClient) Search(ctx context.Context, query string, maxResults int64) ([]*Message, error) {
	if maxResults <= 0 {
		maxResults = 20
	}
	var resp *gmailapi.ListMessagesResponse
	err := c.do(ctx, "messages.list", func() error {
		var err error
		resp, err = c.srv.Users.Messages.List(me).Q(query).MaxResults(maxResults).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}

	results := make(chan *Message, len(resp.Messages))
	semaphore := make(chan struct{}, 10)

	for _, ref := range resp.Messages {
		go func(ref *gmailapi.Message) {
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			var full *gmailapi.Message
			err := c.do(ctx, "messages.get", func() error {
				var err error
				full, err = c.srv.Users.Messages.Get(me, ref.Id).Format("metadata").
					MetadataHeaders("From", "Subject", "Date", "Message-ID").Context(ctx).Do()
				return err
			})
			if err != nil {
				// Keep the reference so callers still see the thread.
				log.Printf("[Gmail] Failed to fetch metadata for message %s: %v", ref.Id, err)
				results <- &Message{ID: ref.Id, ThreadID: ref.ThreadId}
				return
			}
			results <- convertMessage(full)
		}(ref)
	}

	messages := make([]*Message, 0, len(resp.Messages))
	for range resp.Messages {
		messages = append(messages, <-results)
	}

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].InternalDate.After(messages[j].InternalDate)
	})
	return messages, nil
}

// ListHistory returns every change since startHistoryID, following page
// tokens until the feed is exhausted. A start id Gmail no longer knows yields
// ErrCursorExpired.
func (c *UserClient) ListHistory(ctx context.Context, startHistoryID string) (*History, error) {
	start, err := strconv.ParseUint(startHistoryID, 10, 64)
	if err != nil || start == 0 {
		return nil, ErrCursorExpired
	}

	out := &History{HistoryID: startHistoryID}
	pageToken := ""
	for {
		var resp *gmailapi.ListHistoryResponse
		err := c.do(ctx, "history.list", func() error {
			call := c.srv.Users.History.List(me).StartHistoryId(start).
				HistoryTypes("messageAdded", "messageDeleted", "labelAdded", "labelRemoved")
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Context(ctx).Do()
			return err
		})
		if err != nil {
			if IsNotFound(err) {
				return nil, ErrCursorExpired
			}
			return nil, err
		}

		for _, h := range resp.History {
			out.Records = append(out.Records, convertHistory(h))
		}
		if resp.HistoryId != 0 {
			out.HistoryID = strconv.FormatUint(resp.HistoryId, 10)
		}
		if resp.NextPageToken == "" {
			return out, nil
		}
		pageToken = resp.NextPageToken
	}
}

// GetProfile returns the mailbox address and current history id.
func (c *UserClient) GetProfile(ctx context.Context) (*Profile, error) {
	var profile *gmailapi.Profile
	err := c.do(ctx, "users.getProfile", func() error {
		var err error
		profile, err = c.srv.Users.GetProfile(me).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &Profile{
		EmailAddress: profile.EmailAddress,
		HistoryID:    strconv.FormatUint(profile.HistoryId, 10),
	}, nil
}

// ModifyLabels adds and removes labels on a batch of messages. Gmail treats
// adding a present label or removing an absent one as a no-op, so the call is
// idempotent.
func (c *UserClient) ModifyLabels(ctx context.Context, messageIDs []string, add, remove []string) error {
	ids := compact(messageIDs)
	add, remove = compact(add), compact(remove)
	if len(ids) == 0 || (len(add) == 0 && len(remove) == 0) {
		return nil
	}
	req := &gmailapi.BatchModifyMessagesRequest{
		Ids:            ids,
		AddLabelIds:    add,
		RemoveLabelIds: remove,
	}
	return c.do(ctx, "messages.batchModify", func() error {
		return c.srv.Users.Messages.BatchModify(me, req).Context(ctx).Do()
	})
}

// GetDraft returns the draft, or nil when it no longer exists.
func (c *UserClient) GetDraft(ctx context.Context, draftID string) (*Draft, error) {
	var draft *gmailapi.Draft
	err := c.do(ctx, "drafts.get", func() error {
		var err error
		draft, err = c.srv.Users.Drafts.Get(me, draftID).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return convertDraft(draft), nil
}

// ListThreadDrafts returns the drafts that belong to threadID.
func (c *UserClient) ListThreadDrafts(ctx context.Context, threadID string) ([]*Draft, error) {
	var matches []string
	pageToken := ""
	for {
		var resp *gmailapi.ListDraftsResponse
		err := c.do(ctx, "drafts.list", func() error {
			call := c.srv.Users.Drafts.List(me).MaxResults(100)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}
			var err error
			resp, err = call.Context(ctx).Do()
			return err
		})
		if err != nil {
			return nil, err
		}
		for _, d := range resp.Drafts {
			if d.Message != nil && d.Message.ThreadId == threadID {
				matches = append(matches, d.Id)
			}
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	drafts := make([]*Draft, 0, len(matches))
	for _, id := range matches {
		d, err := c.GetDraft(ctx, id)
		if err != nil {
			return nil, err
		}
		if d != nil {
			drafts = append(drafts, d)
		}
	}
	return drafts, nil
}

// CreateDraft creates a reply draft threaded under in.ThreadID.
func (c *UserClient) CreateDraft(ctx context.Context, in DraftInput) (string, error) {
	raw, err := buildReply(in, time.Now())
	if err != nil {
		return "", err
	}
	draft := &gmailapi.Draft{Message: &gmailapi.Message{Raw: raw, ThreadId: in.ThreadID}}

	var created *gmailapi.Draft
	err = c.do(ctx, "drafts.create", func() error {
		var err error
		created, err = c.srv.Users.Drafts.Create(me, draft).Context(ctx).Do()
		return err
	})
	if err != nil {
		return "", err
	}
	return created.Id, nil
}

// DeleteDraft removes a draft. Deleting a draft that is already gone succeeds.
func (c *UserClient) DeleteDraft(ctx context.Context, draftID string) error {
	err := c.do(ctx, "drafts.delete", func() error {
		return c.srv.Users.Drafts.Delete(me, draftID).Context(ctx).Do()
	})
	if IsNotFound(err) {
		return nil
	}
	return err
}

// Watch (re)registers push notifications for the given labels on topicName.
func (c *UserClient) Watch(ctx context.Context, topicName string, labelIDs []string) (*WatchResponse, error) {
	// Only one watch per mailbox is allowed; clear any previous one first.
	_ = c.srv.Users.Stop(me).Context(ctx).Do()

	req := &gmailapi.WatchRequest{
		TopicName: topicName,
		LabelIds:  compact(labelIDs),
	}
	var resp *gmailapi.WatchResponse
	err := c.do(ctx, "users.watch", func() error {
		var err error
		resp, err = c.srv.Users.Watch(me, req).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, err
	}
	return &WatchResponse{
		HistoryID:  strconv.FormatUint(resp.HistoryId, 10),
		Expiration: time.UnixMilli(resp.Expiration),
	}, nil
}

func compact(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
