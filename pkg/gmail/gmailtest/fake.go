// Package gmailtest provides an in-memory gmail.Mailbox for tests.
package gmailtest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
)

// LabelCall records one ModifyLabels invocation.
type LabelCall struct {
	MessageIDs []string
	Add        []string
	Remove     []string
}

// FakeMailbox is a thread-safe in-memory mailbox. Exported fields may be set
// before the fake is shared between goroutines.
type FakeMailbox struct {
	mu sync.Mutex

	Email     string
	HistoryID string

	// History is returned by ListHistory; HistoryErr takes precedence.
	History    *gmail.History
	HistoryErr error

	// SearchFunc overrides the default search, which returns every INBOX
	// message newest first.
	SearchFunc func(query string) []*gmail.Message

	// Fail injects an error for the named method (e.g. "CreateDraft").
	Fail map[string]error

	messages  map[string]*gmail.Message
	drafts    map[string]*gmail.Draft
	nextDraft int

	Searches      []string
	Created       []gmail.DraftInput
	DeletedDrafts []string
	LabelCalls    []LabelCall
	Watches       []string
	HistoryCalls  []string
}

var _ gmail.Mailbox = (*FakeMailbox)(nil)

// New returns an empty mailbox for user@example.com at history id 1000.
func New() *FakeMailbox {
	return &FakeMailbox{
		Email:     "user@example.com",
		HistoryID: "1000",
		Fail:      map[string]error{},
		messages:  map[string]*gmail.Message{},
		drafts:    map[string]*gmail.Draft{},
	}
}

// NotFound builds the error the real client returns for a missing resource.
func NotFound(op string) error {
	return &gmail.PermanentError{Op: op, Code: http.StatusNotFound, Err: errors.New("not found")}
}

// AddMessage stores a message. A zero InternalDate is set to a deterministic
// time derived from insertion order.
func (f *FakeMailbox) AddMessage(m *gmail.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.InternalDate.IsZero() {
		m.InternalDate = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(len(f.messages)) * time.Minute)
	}
	if m.Headers == nil {
		m.Headers = map[string]string{}
	}
	f.messages[m.ID] = m
}

// AddDraft stores an existing draft in threadID and returns its id.
func (f *FakeMailbox) AddDraft(threadID, body string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addDraftLocked(gmail.DraftInput{ThreadID: threadID, Body: body})
}

func (f *FakeMailbox) addDraftLocked(in gmail.DraftInput) string {
	f.nextDraft++
	id := fmt.Sprintf("draft-%d", f.nextDraft)
	f.drafts[id] = &gmail.Draft{
		ID: id,
		Message: &gmail.Message{
			ID:       "msg-" + id,
			ThreadID: in.ThreadID,
			To:       in.To,
			Subject:  gmail.ReplySubject(in.Subject),
			Body:     in.Body,
			Headers:  map[string]string{},
			LabelIDs: []string{"DRAFT"},
		},
	}
	return id
}

// RemoveDraft deletes a draft as if the user sent or discarded it.
func (f *FakeMailbox) RemoveDraft(draftID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.drafts, draftID)
}

// HasDraft reports whether the draft exists.
func (f *FakeMailbox) HasDraft(draftID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.drafts[draftID]
	return ok
}

// DraftBody returns the body of a stored draft.
func (f *FakeMailbox) DraftBody(draftID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.drafts[draftID]; ok {
		return d.Message.Body
	}
	return ""
}

// Labels returns the current labels of a message.
func (f *FakeMailbox) Labels(messageID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.messages[messageID]; ok {
		return append([]string(nil), m.LabelIDs...)
	}
	return nil
}

// ThreadHasLabel reports whether any message of the thread carries labelID.
func (f *FakeMailbox) ThreadHasLabel(threadID, labelID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.messages {
		if m.ThreadID == threadID && m.HasLabel(labelID) {
			return true
		}
	}
	return false
}

func (f *FakeMailbox) failure(method string) error {
	if f.Fail == nil {
		return nil
	}
	return f.Fail[method]
}

func clone(m *gmail.Message) *gmail.Message {
	c := *m
	c.LabelIDs = append([]string(nil), m.LabelIDs...)
	c.Headers = make(map[string]string, len(m.Headers))
	for k, v := range m.Headers {
		c.Headers[k] = v
	}
	return &c
}

func (f *FakeMailbox) GetMessage(_ context.Context, messageID string) (*gmail.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetMessage"); err != nil {
		return nil, err
	}
	m, ok := f.messages[messageID]
	if !ok {
		return nil, NotFound("messages.get")
	}
	return clone(m), nil
}

func (f *FakeMailbox) GetThread(_ context.Context, threadID string) (*gmail.Thread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetThread"); err != nil {
		return nil, err
	}
	t := &gmail.Thread{ID: threadID}
	for _, m := range f.messages {
		if m.ThreadID == threadID {
			t.Messages = append(t.Messages, clone(m))
		}
	}
	if len(t.Messages) == 0 {
		return nil, NotFound("threads.get")
	}
	sort.Slice(t.Messages, func(i, j int) bool {
		return t.Messages[i].InternalDate.Before(t.Messages[j].InternalDate)
	})
	return t, nil
}

func (f *FakeMailbox) Search(_ context.Context, query string, maxResults int64) ([]*gmail.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Searches = append(f.Searches, query)
	if err := f.failure("Search"); err != nil {
		return nil, err
	}

	var out []*gmail.Message
	if f.SearchFunc != nil {
		for _, m := range f.SearchFunc(query) {
			out = append(out, clone(m))
		}
	} else {
		for _, m := range f.messages {
			if m.HasLabel("INBOX") {
				out = append(out, clone(m))
			}
		}
		sort.Slice(out, func(i, j int) bool {
			return out[i].InternalDate.After(out[j].InternalDate)
		})
	}
	if maxResults > 0 && int64(len(out)) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}

func (f *FakeMailbox) ListHistory(_ context.Context, startHistoryID string) (*gmail.History, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.HistoryCalls = append(f.HistoryCalls, startHistoryID)
	if f.HistoryErr != nil {
		return nil, f.HistoryErr
	}
	if f.History == nil {
		return &gmail.History{HistoryID: f.HistoryID}, nil
	}
	h := *f.History
	return &h, nil
}

func (f *FakeMailbox) GetProfile(_ context.Context) (*gmail.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetProfile"); err != nil {
		return nil, err
	}
	return &gmail.Profile{EmailAddress: f.Email, HistoryID: f.HistoryID}, nil
}

func (f *FakeMailbox) ModifyLabels(_ context.Context, messageIDs []string, add, remove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ModifyLabels"); err != nil {
		return err
	}
	f.LabelCalls = append(f.LabelCalls, LabelCall{
		MessageIDs: append([]string(nil), messageIDs...),
		Add:        append([]string(nil), add...),
		Remove:     append([]string(nil), remove...),
	})
	for _, id := range messageIDs {
		m, ok := f.messages[id]
		if !ok {
			continue
		}
		kept := m.LabelIDs[:0:0]
		for _, l := range m.LabelIDs {
			if !contains(remove, l) {
				kept = append(kept, l)
			}
		}
		for _, l := range add {
			if l != "" && !contains(kept, l) {
				kept = append(kept, l)
			}
		}
		m.LabelIDs = kept
	}
	return nil
}

func (f *FakeMailbox) GetDraft(_ context.Context, draftID string) (*gmail.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetDraft"); err != nil {
		return nil, err
	}
	d, ok := f.drafts[draftID]
	if !ok {
		return nil, nil
	}
	return &gmail.Draft{ID: d.ID, Message: clone(d.Message)}, nil
}

func (f *FakeMailbox) ListThreadDrafts(_ context.Context, threadID string) ([]*gmail.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ListThreadDrafts"); err != nil {
		return nil, err
	}
	var out []*gmail.Draft
	for _, d := range f.drafts {
		if d.Message.ThreadID == threadID {
			out = append(out, &gmail.Draft{ID: d.ID, Message: clone(d.Message)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *FakeMailbox) CreateDraft(_ context.Context, in gmail.DraftInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateDraft"); err != nil {
		return "", err
	}
	f.Created = append(f.Created, in)
	return f.addDraftLocked(in), nil
}

func (f *FakeMailbox) DeleteDraft(_ context.Context, draftID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("DeleteDraft"); err != nil {
		return err
	}
	f.DeletedDrafts = append(f.DeletedDrafts, draftID)
	delete(f.drafts, draftID)
	return nil
}

func (f *FakeMailbox) Watch(_ context.Context, topicName string, _ []string) (*gmail.WatchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("Watch"); err != nil {
		return nil, err
	}
	f.Watches = append(f.Watches, topicName)
	return &gmail.WatchResponse{HistoryID: f.HistoryID, Expiration: time.Now().Add(7 * 24 * time.Hour)}, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
