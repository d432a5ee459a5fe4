package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/landovsky/gmail-assistant-sub002/pkg/gmail"
	"github.com/landovsky/gmail-assistant-sub002/pkg/llm"

	"golang.org/x/sync/errgroup"
)

const (
	maxContextQueries   = 3
	maxContextThreads   = 3
	searchResultsLimit  = 10
	contextMessages     = 2
	maxContextPerThread = 2000
)

// RelatedThread is one mailbox thread found for context.
type RelatedThread struct {
	ThreadID string
	Sender   string
	Subject  string
	Snippet  string
	Body     string
}

// RelatedContext is the outcome of context gathering.
type RelatedContext struct {
	Threads []RelatedThread
	Queries []string
}

// Format renders the block appended to draft prompts. Empty context renders
// as "".
func (c *RelatedContext) Format() string {
	if c == nil || len(c.Threads) == 0 {
		return ""
	}
	lines := []string{"--- Related emails from your mailbox ---"}
	for i, t := range c.Threads {
		lines = append(lines, fmt.Sprintf("%d. From: %s | Subject: %s", i+1, t.Sender, t.Subject))
		switch {
		case t.Body != "":
			lines = append(lines, "   "+t.Body)
		case t.Snippet != "":
			lines = append(lines, "   "+truncate(t.Snippet, 200))
		}
	}
	lines = append(lines, "--- End related emails ---")
	return strings.Join(lines, "\n")
}

// ContextGatherer finds related threads in the user's mailbox. The model
// proposes search queries which run concurrently against the mailbox.
type ContextGatherer struct {
	llm   llm.Completer
	model string
}

// NewContextGatherer creates a gatherer.
func NewContextGatherer(completer llm.Completer, model string) *ContextGatherer {
	return &ContextGatherer{llm: completer, model: model}
}

// Gather never fails: any error yields empty context.
func (g *ContextGatherer) Gather(ctx context.Context, mb gmail.Mailbox, req *Request) *RelatedContext {
	queries, err := g.queries(ctx, req)
	if err != nil {
		log.Printf("[Draft] Context query generation failed for thread %s: %v", req.ThreadID, err)
		return &RelatedContext{}
	}
	if len(queries) == 0 {
		return &RelatedContext{}
	}
	threads := g.search(ctx, mb, queries, req.ThreadID)
	return &RelatedContext{Threads: threads, Queries: queries}
}

func (g *ContextGatherer) queries(ctx context.Context, req *Request) ([]string, error) {
	resp, err := g.llm.Complete(ctx, &llm.Request{
		Model: g.model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: contextSystemPrompt},
			{Role: llm.RoleUser, Content: buildContextMessage(req.SenderEmail, req.Subject, req.ThreadBody)},
		},
		Temperature: 0,
		MaxTokens:   256,
		CallType:    "context",
		UserID:      req.UserID,
		ThreadID:    req.ThreadID,
	})
	if err != nil {
		return nil, err
	}

	var raw []any
	if err := json.Unmarshal([]byte(llm.StripCodeFences(resp.Content)), &raw); err != nil {
		return nil, &llm.OutputParseError{Raw: resp.Content, Err: err}
	}
	var out []string
	for _, q := range raw {
		s := strings.TrimSpace(fmt.Sprint(q))
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxContextQueries {
			break
		}
	}
	return out, nil
}

func (g *ContextGatherer) search(ctx context.Context, mb gmail.Mailbox, queries []string, exclude string) []RelatedThread {
	results := make([][]*gmail.Message, len(queries))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, q := range queries {
		eg.Go(func() error {
			msgs, err := mb.Search(egCtx, q, searchResultsLimit)
			if err != nil {
				log.Printf("[Draft] Context search %q failed: %v", q, err)
				return nil
			}
			results[i] = msgs
			return nil
		})
	}
	_ = eg.Wait()

	seen := map[string]bool{exclude: true}
	var threads []RelatedThread
collect:
	for _, msgs := range results {
		for _, m := range msgs {
			if seen[m.ThreadID] {
				continue
			}
			seen[m.ThreadID] = true
			sender := m.SenderEmail
			if m.SenderName != "" {
				sender = fmt.Sprintf("%s <%s>", m.SenderName, m.SenderEmail)
			}
			threads = append(threads, RelatedThread{
				ThreadID: m.ThreadID,
				Sender:   sender,
				Subject:  m.Subject,
				Snippet:  m.Snippet,
			})
			if len(threads) == maxContextThreads {
				break collect
			}
		}
	}

	eg, egCtx = errgroup.WithContext(ctx)
	for i := range threads {
		eg.Go(func() error {
			t, err := mb.GetThread(egCtx, threads[i].ThreadID)
			if err != nil {
				log.Printf("[Draft] Failed to fetch context thread %s: %v", threads[i].ThreadID, err)
				return nil
			}
			threads[i].Body = recentBody(t)
			return nil
		})
	}
	_ = eg.Wait()
	return threads
}

func recentBody(t *gmail.Thread) string {
	if t == nil {
		return ""
	}
	msgs := t.Messages
	if len(msgs) > contextMessages {
		msgs = msgs[len(msgs)-contextMessages:]
	}
	var bodies []string
	for _, m := range msgs {
		if m.Body != "" {
			bodies = append(bodies, m.Body)
		}
	}
	return truncate(ThreadBody(bodies), maxContextPerThread)
}
