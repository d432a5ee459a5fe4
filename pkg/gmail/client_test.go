package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/landovsky/gmail-assistant-sub002/pkg/retry"

	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *UserClient {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	srv, err := gmailapi.NewService(context.Background(),
		option.WithEndpoint(ts.URL+"/"),
		option.WithHTTPClient(ts.Client()),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return NewUserClient(srv, retry.NoDelay())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, status int) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": http.StatusText(status)},
	})
}

func TestListHistoryPaginates(t *testing.T) {
	var mu sync.Mutex
	var tokens []string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/me/history") {
			apiError(w, http.StatusNotFound)
			return
		}
		mu.Lock()
		tokens = append(tokens, r.URL.Query().Get("pageToken"))
		mu.Unlock()

		if r.URL.Query().Get("pageToken") == "" {
			writeJSON(w, http.StatusOK, map[string]any{
				"history": []any{map[string]any{
					"id": "101",
					"messagesAdded": []any{map[string]any{
						"message": map[string]any{"id": "m1", "threadId": "t1", "labelIds": []string{"INBOX"}},
					}},
				}},
				"historyId":     "104",
				"nextPageToken": "p2",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"history": []any{map[string]any{
				"id": "105",
				"labelsAdded": []any{map[string]any{
					"message":  map[string]any{"id": "m2", "threadId": "t2"},
					"labelIds": []string{"Label_9"},
				}},
			}},
			"historyId": "106",
		})
	})

	h, err := c.ListHistory(context.Background(), "100")
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(tokens) != 2 || tokens[1] != "p2" {
		t.Fatalf("expected two pages, got tokens %v", tokens)
	}
	if h.HistoryID != "106" {
		t.Errorf("expected terminal history id 106, got %s", h.HistoryID)
	}
	if len(h.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(h.Records))
	}
	if got := h.Records[0].MessagesAdded; len(got) != 1 || got[0].ThreadID != "t1" {
		t.Errorf("unexpected messagesAdded: %+v", got)
	}
	if got := h.Records[1].LabelsAdded; len(got) != 1 || got[0].LabelIDs[0] != "Label_9" {
		t.Errorf("unexpected labelsAdded: %+v", got)
	}
}

func TestListHistoryExpiredCursor(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		apiError(w, http.StatusNotFound)
	})

	if _, err := c.ListHistory(context.Background(), "100"); !errors.Is(err, ErrCursorExpired) {
		t.Fatalf("expected ErrCursorExpired, got %v", err)
	}
	if _, err := c.ListHistory(context.Background(), "0"); !errors.Is(err, ErrCursorExpired) {
		t.Fatalf("expected ErrCursorExpired for sentinel, got %v", err)
	}
}

func TestTransientErrorsAreRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			apiError(w, http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"emailAddress": "a@example.com", "historyId": "42"})
	})

	p, err := c.GetProfile(context.Background())
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.HistoryID != "42" || calls.Load() != 3 {
		t.Errorf("expected history 42 after 3 calls, got %s after %d", p.HistoryID, calls.Load())
	}
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		apiError(w, http.StatusForbidden)
	})

	_, err := c.GetProfile(context.Background())
	var perr *PermanentError
	if !errors.As(err, &perr) || perr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 PermanentError, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single call, got %d", calls.Load())
	}
}

func TestRateLimitIsTransient(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		apiError(w, http.StatusTooManyRequests)
	})

	_, err := c.GetProfile(context.Background())
	if !IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestGetDraftMissingReturnsNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		apiError(w, http.StatusNotFound)
	})

	d, err := c.GetDraft(context.Background(), "d1")
	if err != nil || d != nil {
		t.Fatalf("expected nil, nil; got %v, %v", d, err)
	}
	if err := c.DeleteDraft(context.Background(), "d1"); err != nil {
		t.Fatalf("deleting a missing draft should succeed, got %v", err)
	}
}

func TestModifyLabelsSkipsEmptyRequests(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.ModifyLabels(context.Background(), []string{"m1"}, nil, []string{""}); err != nil {
		t.Fatalf("ModifyLabels: %v", err)
	}
	if calls.Load() != 0 {
		t.Errorf("expected no request, got %d", calls.Load())
	}
	if err := c.ModifyLabels(context.Background(), []string{"m1", "m1"}, []string{"L1"}, nil); err != nil {
		t.Fatalf("ModifyLabels: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected one request, got %d", calls.Load())
	}
}

func TestSearchKeepsThreadWhenMetadataFails(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/users/me/messages"):
			writeJSON(w, http.StatusOK, map[string]any{"messages": []map[string]any{
				{"id": "m1", "threadId": "t1"},
				{"id": "m2", "threadId": "t2"},
			}})
		case strings.HasSuffix(r.URL.Path, "/users/me/messages/m1"):
			writeJSON(w, http.StatusOK, map[string]any{
				"id": "m1", "threadId": "t1", "internalDate": "1700000000000",
				"payload": map[string]any{"headers": []map[string]any{{"name": "Subject", "value": "Hello"}}},
			})
		default:
			apiError(w, http.StatusInternalServerError)
		}
	})

	msgs, err := c.Search(context.Background(), "in:inbox", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	threads := map[string]*Message{}
	for _, m := range msgs {
		threads[m.ThreadID] = m
	}
	if len(msgs) != 2 || threads["t1"] == nil || threads["t2"] == nil {
		t.Fatalf("expected both threads, got %+v", msgs)
	}
	if threads["t1"].Subject != "Hello" || threads["t2"].ID != "m2" {
		t.Errorf("unexpected results: %+v %+v", threads["t1"], threads["t2"])
	}
}
