package gmail

import (
	"context"
	"strings"
	"time"
)

// Mailbox is the set of provider operations the assistant core relies on.
// UserClient implements it against the Gmail API; gmailtest.FakeMailbox
// implements it in memory.
type Mailbox interface {
	GetMessage(ctx context.Context, messageID string) (*Message, error)
	GetThread(ctx context.Context, threadID string) (*Thread, error)
	Search(ctx context.Context, query string, maxResults int64) ([]*Message, error)
	ListHistory(ctx context.Context, startHistoryID string) (*History, error)
	GetProfile(ctx context.Context) (*Profile, error)
	ModifyLabels(ctx context.Context, messageIDs []string, add, remove []string) error
	GetDraft(ctx context.Context, draftID string) (*Draft, error)
	ListThreadDrafts(ctx context.Context, threadID string) ([]*Draft, error)
	CreateDraft(ctx context.Context, in DraftInput) (string, error)
	DeleteDraft(ctx context.Context, draftID string) error
	Watch(ctx context.Context, topicName string, labelIDs []string) (*WatchResponse, error)
}

// Message is a decoded Gmail message.
type Message struct {
	ID           string
	ThreadID     string
	LabelIDs     []string
	SenderEmail  string
	SenderName   string
	To           string
	Subject      string
	Snippet      string
	Body         string
	Headers      map[string]string
	InternalDate time.Time
}

// Header looks up a header value case-insensitively.
func (m *Message) Header(name string) string {
	if v, ok := m.Headers[name]; ok {
		return v
	}
	for k, v := range m.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// HasLabel reports whether the message carries labelID.
func (m *Message) HasLabel(labelID string) bool {
	return hasLabel(m.LabelIDs, labelID)
}

// Thread is a conversation in message order (oldest first).
type Thread struct {
	ID       string
	Messages []*Message
}

// Latest returns the newest message, or nil for an empty thread.
func (t *Thread) Latest() *Message {
	if t == nil || len(t.Messages) == 0 {
		return nil
	}
	return t.Messages[len(t.Messages)-1]
}

// MessageIDs returns the ids of all messages in the thread.
func (t *Thread) MessageIDs() []string {
	ids := make([]string, 0, len(t.Messages))
	for _, m := range t.Messages {
		ids = append(ids, m.ID)
	}
	return ids
}

// Draft is a Gmail draft with its message.
type Draft struct {
	ID      string
	Message *Message
}

// DraftInput describes a reply draft to create.
type DraftInput struct {
	ThreadID   string
	To         string
	Subject    string
	Body       string
	InReplyTo  string
	References string
}

// Profile is the subset of the mailbox profile the sync engine needs.
type Profile struct {
	EmailAddress string
	HistoryID    string
}

// MessageRef identifies a message in a history record.
type MessageRef struct {
	ID       string
	ThreadID string
	LabelIDs []string
}

// LabelChange is a label delta applied to one message.
type LabelChange struct {
	MessageID string
	ThreadID  string
	LabelIDs  []string
}

// HistoryRecord groups the changes of one history id.
type HistoryRecord struct {
	ID              string
	MessagesAdded   []MessageRef
	MessagesDeleted []MessageRef
	LabelsAdded     []LabelChange
	LabelsRemoved   []LabelChange
}

// History is the fully paginated change feed since a cursor. HistoryID is the
// mailbox's current history id as reported by the last page.
type History struct {
	Records   []HistoryRecord
	HistoryID string
}

// WatchResponse is returned by a successful watch request.
type WatchResponse struct {
	HistoryID  string
	Expiration time.Time
}
