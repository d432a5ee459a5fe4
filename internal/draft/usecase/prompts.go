package usecase

import (
	"fmt"
	"strings"

	"github.com/landovsky/gmail-assistant-sub002/pkg/styles"
)

const (
	maxThreadChars  = 3000
	maxMessageChars = 1000
)

const draftGuidelines = `Guidelines:
- Match the language of the incoming email unless the style specifies otherwise.
- Keep drafts concise, matching the length and energy of the sender.
- Include specific details from the original email (dates, names, numbers).
- Never fabricate information. If context is missing, flag it with [TODO: ...].
- Use the sign-off from the style.
- Do NOT include the subject line in the body.
- Output ONLY the draft text, nothing else.`

func buildSystemPrompt(style styles.Style, styleName, language string) string {
	if language == "" {
		language = style.Language
	}
	if language == "" {
		language = "auto"
	}

	var b strings.Builder
	b.WriteString("You are an email draft generator. Write a reply following the communication style rules below.\n\n")
	fmt.Fprintf(&b, "Style: %s\n", styleName)
	fmt.Fprintf(&b, "Language: %s (if \"auto\", match the language of the incoming email)\n\n", language)

	b.WriteString("Rules:\n")
	for _, r := range style.Rules {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	fmt.Fprintf(&b, "\nSign-off: %s\n\n", style.SignOff)

	if len(style.Examples) > 0 {
		b.WriteString("Examples:\n")
		for _, ex := range style.Examples {
			fmt.Fprintf(&b, "Context: %s\nInput: %s\nDraft:\n%s\n\n", ex.Context, ex.Input, ex.Draft)
		}
	}
	b.WriteString(draftGuidelines)
	return b.String()
}

func fromLine(email, name string) string {
	if name != "" {
		return fmt.Sprintf("From: %s <%s>", name, email)
	}
	return "From: " + email
}

func buildUserMessage(req *Request, related string) string {
	parts := []string{
		fromLine(req.SenderEmail, req.SenderName),
		"Subject: " + req.Subject,
		"",
		"Thread:",
		truncate(req.ThreadBody, maxThreadChars),
	}
	if related != "" {
		parts = append(parts, "", related)
	}
	if req.Instructions != "" {
		parts = append(parts,
			"",
			"--- User instructions ---",
			req.Instructions,
			"--- End instructions ---",
			"",
			"Incorporate these instructions into the draft. They guide WHAT to say, not HOW to say it. The draft should still follow the style rules.",
		)
	}
	return strings.Join(parts, "\n")
}

func buildReworkMessage(req *Request, related, currentDraft, instruction string, reworkCount int) string {
	parts := []string{
		fromLine(req.SenderEmail, req.SenderName),
		"Subject: " + req.Subject,
		fmt.Sprintf("Rework #%d", reworkCount+1),
		"",
		"Thread:",
		truncate(req.ThreadBody, maxThreadChars),
	}
	if related != "" {
		parts = append(parts, "", related)
	}
	parts = append(parts,
		"",
		"Current draft:",
		currentDraft,
		"",
		"User feedback / instructions:",
		instruction,
		"",
		"Regenerate the draft incorporating the user's feedback. Preserve any factual content the user added. If the instruction is ambiguous, err on the side of minimal changes.",
	)
	return strings.Join(parts, "\n")
}

const contextSystemPrompt = `You generate Gmail search queries to find related emails for context.

Given an email thread (sender, subject, body), output a JSON array of 2-3 Gmail search queries
that would find related correspondence in the user's mailbox.

Rules:
- Output ONLY a JSON array of strings, nothing else.
- One query MUST be sender-based: from:sender@example.com
- Other queries should be topic-based: keywords, project names, reference numbers, company names.
- Do NOT use date operators (newer_than:, after:, before:). Let Gmail return by relevance.
- Keep queries short, 2-4 terms each.
- Extract specific identifiers when present (invoice numbers, project codes, ticket IDs).

Example output:
["from:petr@acme.com", "acme project alpha", "invoice INV-2024-003"]`

func buildContextMessage(sender, subject, body string) string {
	return fmt.Sprintf("Sender: %s\nSubject: %s\n\nBody:\n%s", sender, subject, truncate(body, 1500))
}

// ThreadBody joins the message bodies of a thread, each capped, oldest first.
func ThreadBody(bodies []string) string {
	capped := make([]string, 0, len(bodies))
	for _, b := range bodies {
		capped = append(capped, truncate(b, maxMessageChars))
	}
	return strings.Join(capped, "\n---\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
